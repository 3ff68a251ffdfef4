package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"clamm/internal/model"
)

// JsonlStorage writes simulation output as JSON lines, one file per record
// kind under a common directory.
type JsonlStorage struct {
	dir string
	mu  sync.Mutex
}

func NewJsonlStorage(dir string) *JsonlStorage {
	return &JsonlStorage{dir: dir}
}

// PutResults appends a batch of operation results.
func (s *JsonlStorage) PutResults(_ context.Context, results []model.ResultRecord) error {
	return appendLines(s, "results.jsonl", results)
}

// PutSnapshots appends a batch of pool snapshots.
func (s *JsonlStorage) PutSnapshots(_ context.Context, snapshots []model.PoolSnapshot) error {
	return appendLines(s, "snapshots.jsonl", snapshots)
}

// PutMetrics appends a batch of swap metrics.
func (s *JsonlStorage) PutMetrics(_ context.Context, metrics []model.SwapMetrics) error {
	return appendLines(s, "metrics.jsonl", metrics)
}

func appendLines[T any](s *JsonlStorage, name string, records []T) error {
	if len(records) == 0 {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
