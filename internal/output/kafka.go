package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/chrisdamba/radarsim/internal/models"
)

// KafkaOutput publishes display records keyed by station id.
type KafkaOutput struct {
	producer  sarama.SyncProducer
	topic     string
	stationID string
}

// NewSaramaConfig returns the producer settings used for the display topic.
func NewSaramaConfig(cfg models.KafkaConfig) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true // Must be true for SyncProducer
	saramaConfig.Net.DialTimeout = 30 * time.Second
	saramaConfig.Net.ReadTimeout = 30 * time.Second
	saramaConfig.Net.WriteTimeout = 30 * time.Second

	if cfg.SessionTimeoutMs > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(cfg.SessionTimeoutMs) * time.Millisecond
	} else {
		saramaConfig.Consumer.Group.Session.Timeout = 45 * time.Second
	}
	return saramaConfig
}

func NewKafkaOutput(cfg models.KafkaConfig, stationID string) (*KafkaOutput, error) {
	brokerList := strings.Split(cfg.BrokerList, ",")

	producer, err := sarama.NewSyncProducer(brokerList, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama producer: %w", err)
	}
	return NewKafkaOutputWithProducer(producer, cfg.Topic, stationID), nil
}

// NewKafkaOutputWithProducer wraps an existing producer.
func NewKafkaOutputWithProducer(producer sarama.SyncProducer, topic, stationID string) *KafkaOutput {
	return &KafkaOutput{producer: producer, topic: topic, stationID: stationID}
}

func (k *KafkaOutput) Write(rec models.DisplayRecord) error {
	if k.producer == nil {
		return fmt.Errorf("Sarama producer is not initialized")
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(k.stationID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("failed to send display record to topic %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaOutput) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
