package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"clamm/internal/model"
)

func TestJsonlAppend(t *testing.T) {
	dir := t.TempDir()
	s := NewJsonlStorage(filepath.Join(dir, "out"))
	ctx := context.Background()

	first := []model.ResultRecord{
		{Seq: 1, Op: model.OpInitialize, Pool: "0xaa"},
		{Seq: 2, Op: model.OpMint, Pool: "0xaa", Amount0: "100"},
	}
	if err := s.PutResults(ctx, first); err != nil {
		t.Fatalf("PutResults failed: %v", err)
	}
	// A second batch appends rather than truncates.
	if err := s.PutResults(ctx, []model.ResultRecord{{Seq: 3, Op: model.OpSwap, Pool: "0xaa"}}); err != nil {
		t.Fatalf("second PutResults failed: %v", err)
	}

	got := readResults(t, filepath.Join(dir, "out", "results.jsonl"))
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for i, record := range got {
		if record.Seq != uint64(i+1) {
			t.Fatalf("record %d has seq %d", i, record.Seq)
		}
	}
	if got[1].Amount0 != "100" {
		t.Fatalf("amount0 = %s, want 100", got[1].Amount0)
	}
}

func TestJsonlEmptyBatch(t *testing.T) {
	dir := t.TempDir()
	s := NewJsonlStorage(dir)
	if err := s.PutSnapshots(context.Background(), nil); err != nil {
		t.Fatalf("empty batch errored: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "snapshots.jsonl")); !os.IsNotExist(err) {
		t.Fatal("empty batch created a file")
	}
}

func readResults(t *testing.T, path string) []model.ResultRecord {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()

	var out []model.ResultRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.ResultRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		out = append(out, record)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}
