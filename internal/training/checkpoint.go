package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint records the last completed epoch of a run and where the trainer stored the model
// and optimizer states for it. The state payloads themselves are owned by the trainer.
type Checkpoint struct {
	RunID         string    `json:"run_id"`
	Epoch         int       `json:"epoch"`
	ModelPath     string    `json:"model_path"`
	OptimizerPath string    `json:"optimizer_path"`
	Loss          float64   `json:"loss"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LoadCheckpoint returns nil without error when no checkpoint exists.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("invalid checkpoint %s: %w", path, err)
	}
	if ckpt.Epoch < 0 {
		return nil, fmt.Errorf("invalid checkpoint %s: negative epoch %d", path, ckpt.Epoch)
	}
	return &ckpt, nil
}

// SaveCheckpoint replaces the checkpoint atomically so an interrupted save never leaves a
// truncated file behind.
func SaveCheckpoint(path string, ckpt *Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	data, err := json.MarshalIndent(ckpt, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
