package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockEmbedder returns deterministic vectors and can be told to fail
// specific texts or a number of leading calls.
type mockEmbedder struct {
	mu        sync.Mutex
	calls     int
	batches   [][]string
	failTexts map[string]bool
	failFirst int
}

func (m *mockEmbedder) Name() string    { return "mock" }
func (m *mockEmbedder) Dimensions() int { return 3 }

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.batches = append(m.batches, append([]string(nil), texts...))

	if m.failFirst > 0 {
		m.failFirst--
		return nil, errors.New("transient failure")
	}
	for _, t := range texts {
		if m.failTexts[t] {
			return nil, fmt.Errorf("poison text %q", t)
		}
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = []float32{float32(len(t)), 1, 2}
	}
	return vecs, nil
}

func fastConfig(batchSize int) DispatcherConfig {
	return DispatcherConfig{
		BatchSize:   batchSize,
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
		MaxInFlight: 2,
	}
}

func TestEmbedAll_SplitsIntoBatches(t *testing.T) {
	mock := &mockEmbedder{}
	d := NewDispatcher(mock, fastConfig(2))

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, failed, err := d.EmbedAll(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedAll returned error: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("expected no failures, got %v", failed)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if v == nil {
			t.Fatalf("vector %d is nil", i)
		}
		if v[0] != float32(len(texts[i])) {
			t.Errorf("vector %d misaligned: got %v for %q", i, v, texts[i])
		}
	}
	if len(mock.batches) != 3 {
		t.Errorf("expected 3 batches for 5 texts at size 2, got %d", len(mock.batches))
	}
}

func TestEmbedAll_RetriesTransientFailure(t *testing.T) {
	mock := &mockEmbedder{failFirst: 1}
	d := NewDispatcher(mock, fastConfig(4))

	vecs, failed, err := d.EmbedAll(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedAll returned error: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("expected recovery after retry, got failures %v", failed)
	}
	if vecs[0] == nil || vecs[1] == nil {
		t.Fatal("expected both vectors after retry")
	}
	if mock.calls < 2 {
		t.Errorf("expected at least 2 calls, got %d", mock.calls)
	}
}

func TestEmbedAll_IsolatesPoisonText(t *testing.T) {
	mock := &mockEmbedder{failTexts: map[string]bool{"poison": true}}
	d := NewDispatcher(mock, fastConfig(4))

	texts := []string{"good1", "poison", "good2", "good3"}
	vecs, failed, err := d.EmbedAll(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedAll returned error: %v", err)
	}

	if len(failed) != 1 {
		t.Fatalf("expected exactly 1 failure, got %d: %v", len(failed), failed)
	}
	if failed[0].Index != 1 {
		t.Errorf("expected failure at index 1, got %d", failed[0].Index)
	}
	if !strings.Contains(failed[0].Err.Error(), "poison") {
		t.Errorf("failure should carry the underlying cause, got: %v", failed[0].Err)
	}

	for i, v := range vecs {
		if i == 1 {
			if v != nil {
				t.Error("poison text should have a nil vector")
			}
			continue
		}
		if v == nil {
			t.Errorf("text %d should have succeeded via batch split", i)
		}
	}
}

func TestEmbedAll_ContextCancellation(t *testing.T) {
	mock := &mockEmbedder{}
	d := NewDispatcher(mock, fastConfig(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := d.EmbedAll(ctx, []string{"a", "b"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEmbedAll_EmptyInput(t *testing.T) {
	mock := &mockEmbedder{}
	d := NewDispatcher(mock, fastConfig(2))

	vecs, failed, err := d.EmbedAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedAll returned error: %v", err)
	}
	if len(vecs) != 0 || len(failed) != 0 {
		t.Errorf("expected empty results, got %d vectors, %d failures", len(vecs), len(failed))
	}
	if mock.calls != 0 {
		t.Errorf("embedder should not be called for empty input, got %d calls", mock.calls)
	}
}
