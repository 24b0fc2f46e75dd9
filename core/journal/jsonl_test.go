package journal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	pad := make([]byte, 4096)
	for i := range pad {
		pad[i] = 'x'
	}
	big := json.RawMessage(`"` + string(pad) + `"`)
	rec := Record{Timestamp: time.Now(), Kind: KindStatus, Payload: big}
	for i := 0; i < 300; i++ {
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	files, _ := filepath.Glob(filepath.Join(dir, "sessions*.jsonl"))
	if len(files) < 2 {
		t.Fatalf("expected rotated files, got %v", files)
	}
	out, err := store.Query(context.Background(), Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected records across files")
	}
}

func TestRotatingJSONLStore_Query(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	recs := []Record{
		{Timestamp: base.Add(2 * time.Minute), SessionID: "a", Kind: KindCommand, Payload: json.RawMessage(`{}`)},
		{Timestamp: base, SessionID: "a", Kind: KindStatus, Payload: json.RawMessage(`{}`)},
		{Timestamp: base.Add(time.Hour), SessionID: "b", Kind: KindStatus, Payload: json.RawMessage(`{}`)},
	}
	for _, r := range recs {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	out, err := store.Query(ctx, Query{SessionID: "a"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 2 || !out[0].Timestamp.Equal(base) {
		t.Fatalf("expected 2 ordered records, got %+v", out)
	}
	out, _ = store.Query(ctx, Query{Kind: KindStatus, Start: base.Add(time.Minute)})
	if len(out) != 1 || out[0].SessionID != "b" {
		t.Fatalf("unexpected filter result %+v", out)
	}
}
