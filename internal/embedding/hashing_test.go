package embedding

import (
	"context"
	"math"
	"testing"
)

func TestHashing_Deterministic(t *testing.T) {
	e := NewHashing()
	a, err := e.EmbedBatch(context.Background(), []string{"the quick brown fox"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	b, err := e.EmbedBatch(context.Background(), []string{"the quick brown fox"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[0][i], b[0][i])
		}
	}
}

func TestHashing_Normalized(t *testing.T) {
	e := NewHashing()
	vecs, err := e.EmbedBatch(context.Background(), []string{"some response text here"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	var norm float64
	for _, v := range vecs[0] {
		norm += v * v
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("squared norm = %v, want 1", norm)
	}
	if len(vecs[0]) != e.Dim() {
		t.Errorf("len = %d, want %d", len(vecs[0]), e.Dim())
	}
}

func TestHashing_EmptyText(t *testing.T) {
	e := NewHashing()
	vecs, err := e.EmbedBatch(context.Background(), []string{""})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	for _, v := range vecs[0] {
		if v != 0 {
			t.Fatal("empty text must embed to the zero vector")
		}
	}
}

func TestHashing_DistinctTexts(t *testing.T) {
	e := NewHashing()
	vecs, err := e.EmbedBatch(context.Background(), []string{
		"stocks and bonds and markets",
		"cats and dogs and hamsters",
	})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	var dot float64
	for i := range vecs[0] {
		dot += vecs[0][i] * vecs[1][i]
	}
	if dot > 0.99 {
		t.Errorf("cosine = %v, want unrelated texts to differ", dot)
	}
}

func TestHashing_CancelledContext(t *testing.T) {
	e := NewHashing()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.EmbedBatch(ctx, []string{"a"}); err == nil {
		t.Error("EmbedBatch() with cancelled context should fail")
	}
}
