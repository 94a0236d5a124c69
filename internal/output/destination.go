// Package output renders display records: an ANSI panel on a terminal, a
// JSON-lines file and a Kafka topic.
package output

import (
	"errors"

	"github.com/chrisdamba/radarsim/internal/models"
)

// Destination receives display records in arrival order.
type Destination interface {
	Write(rec models.DisplayRecord) error
	Close() error
}

// Multi fans a record out to several destinations. A failing destination
// does not stop the others.
type Multi []Destination

func (m Multi) Write(rec models.DisplayRecord) error {
	var errs []error
	for _, d := range m {
		if err := d.Write(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, d := range m {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
