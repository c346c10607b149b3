package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanshika/fingraph/internal/transport"
)

// DatasetFile is the file WriteDataset produces under its directory.
const DatasetFile = "events.json"

// WriteDataset serializes the dataset into events.json under the provided directory.
func WriteDataset(dataset Dataset, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return writeJSON(filepath.Join(dir, DatasetFile), dataset)
}

// ReadDataset loads a dataset written by WriteDataset.
func ReadDataset(path string) (Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("read %s: %w", path, err)
	}
	var dataset Dataset
	if err := json.Unmarshal(raw, &dataset); err != nil {
		return Dataset{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return dataset, nil
}

// Publish sends every message to its topic in order and returns how many were sent.
func Publish(ctx context.Context, publisher transport.Publisher, dataset Dataset) (int, error) {
	for i, m := range dataset.Messages {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		payload, err := json.Marshal(m.Event)
		if err != nil {
			return i, fmt.Errorf("encode event %s: %w", m.Event.ID, err)
		}
		if err := publisher.Publish(ctx, m.Topic, payload); err != nil {
			return i, fmt.Errorf("publish event %s to %s: %w", m.Event.ID, m.Topic, err)
		}
	}
	return len(dataset.Messages), nil
}

func writeJSON(path string, data any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode json for %s: %w", path, err)
	}
	return nil
}
