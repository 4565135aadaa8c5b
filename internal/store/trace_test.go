package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "run-trace"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Iteration: 0, Loss: 1.0, Timestamp: time.Now()},
		{Iteration: 1, Loss: 0.8, Timestamp: time.Now()},
		{Iteration: 2, Loss: 0.6, Timestamp: time.Now(), Weights: []float64{1, 2, 3}},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	expectedPath := filepath.Join(tmpDir, "runs", runID, "trace.jsonl")
	if writer.Path() != expectedPath {
		t.Errorf("Path = %q, want %q", writer.Path(), expectedPath)
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("Read %d entries, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i].Iteration != entries[i].Iteration || got[i].Loss != entries[i].Loss {
			t.Errorf("Entry %d = %+v, want %+v", i, got[i], entries[i])
		}
	}
	if len(got[0].Weights) != 0 {
		t.Errorf("Entry 0 should have no weights, got %v", got[0].Weights)
	}
	if len(got[2].Weights) != 3 {
		t.Errorf("Entry 2 weights = %v, want 3 values", got[2].Weights)
	}
}

func TestTraceWriter_WriteHistory(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewTraceWriter(tmpDir, "run-history", false)
	if err != nil {
		t.Fatal(err)
	}
	history := []float64{5, 3, 2.5, 2.4}
	if err := writer.WriteHistory(history, time.Now()); err != nil {
		t.Fatalf("WriteHistory failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	reader, err := NewTraceReader(tmpDir, "run-history")
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(history) {
		t.Fatalf("Read %d entries, want %d", len(got), len(history))
	}
	for i, e := range got {
		if e.Iteration != i || e.Loss != history[i] {
			t.Errorf("Entry %d = %+v, want iteration %d loss %v", i, e, i, history[i])
		}
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "run-append"

	for i, appendMode := range []bool{false, true} {
		writer, err := NewTraceWriter(tmpDir, runID, appendMode)
		if err != nil {
			t.Fatal(err)
		}
		if err := writer.Write(TraceEntry{Iteration: i, Loss: float64(i), Timestamp: time.Now()}); err != nil {
			t.Fatal(err)
		}
		if err := writer.Close(); err != nil {
			t.Fatal(err)
		}
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries after append, got %d", len(got))
	}
}

func TestTraceWriter_Truncate(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "run-truncate"

	for range 2 {
		writer, err := NewTraceWriter(tmpDir, runID, false)
		if err != nil {
			t.Fatal(err)
		}
		if err := writer.Write(TraceEntry{Iteration: 0, Loss: 1, Timestamp: time.Now()}); err != nil {
			t.Fatal(err)
		}
		if err := writer.Close(); err != nil {
			t.Fatal(err)
		}
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("Expected 1 entry without append, got %d", len(got))
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewTraceWriter(tmpDir, "run-flush", false)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	if err := writer.Write(TraceEntry{Iteration: 0, Loss: 1, Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(writer.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("Expected empty file before flush, got %d bytes", info.Size())
	}

	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	info, err = os.Stat(writer.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("Expected data on disk after flush")
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewTraceWriter(tmpDir, "run-iter", false)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := writer.Write(TraceEntry{Iteration: i, Loss: float64(5 - i), Timestamp: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	reader, err := NewTraceReader(tmpDir, "run-iter")
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	count := 0
	for {
		entry, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if entry.Iteration != count {
			t.Errorf("Iteration = %d, want %d", entry.Iteration, count)
		}
		count++
	}
	if count != 5 {
		t.Errorf("Read %d entries, want 5", count)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTraceReader_Corrupted(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "runs", "bad")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "trace.jsonl"), []byte("{\"iteration\":0}\nnot json\n"), 0644); err != nil {
		t.Fatal(err)
	}

	reader, err := NewTraceReader(tmpDir, "bad")
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	if _, err := reader.ReadAll(); err == nil {
		t.Error("Expected error for corrupted line")
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewTraceWriter(tmpDir, "run-del", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	if err := DeleteTrace(tmpDir, "run-del"); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}
	if _, err := os.Stat(writer.Path()); !os.IsNotExist(err) {
		t.Error("Trace file still exists")
	}

	// Deleting again is fine.
	if err := DeleteTrace(tmpDir, "run-del"); err != nil {
		t.Errorf("Second DeleteTrace failed: %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewTraceWriter(tmpDir, "run-concurrent", false)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := writer.Write(TraceEntry{Iteration: g*50 + i, Loss: 1, Timestamp: time.Now()}); err != nil {
					t.Errorf("Write failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	reader, err := NewTraceReader(tmpDir, "run-concurrent")
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 400 {
		t.Errorf("Read %d entries, want 400", len(got))
	}
}
