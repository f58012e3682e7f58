package guide

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/snapetech/iptvconstructor/internal/epglink"
)

// Snapshot loads a table saved by SaveSnapshot: a JSON object of
// name → id whose key order is the table order.
type Snapshot struct {
	Path string
}

func (s *Snapshot) Table(context.Context) (*epglink.Table, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("guide snapshot: %w", err)
	}
	t := epglink.NewTable()
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("guide snapshot %s: %w", s.Path, err)
	}
	if t.Len() == 0 {
		return nil, ErrNoTable
	}
	return t, nil
}

// SaveSnapshot writes t to path atomically.
func SaveSnapshot(path string, t *epglink.Table) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(filepath.Clean(path))
	tmp, err := os.CreateTemp(dir, ".epg-*.json.tmp")
	if err != nil {
		return fmt.Errorf("guide snapshot: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("guide snapshot: write: %w", writeErr)
		}
		return fmt.Errorf("guide snapshot: close: %w", closeErr)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("guide snapshot: rename: %w", err)
	}
	return nil
}
