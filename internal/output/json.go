package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chrisdamba/radarsim/internal/models"
)

// JSONOutput appends one JSON object per display record to a file.
type JSONOutput struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func NewJSONOutput(path string) (*JSONOutput, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open display log %s: %w", path, err)
	}
	return &JSONOutput{file: file, enc: json.NewEncoder(file)}, nil
}

func (j *JSONOutput) Write(rec models.DisplayRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(rec)
}

func (j *JSONOutput) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
