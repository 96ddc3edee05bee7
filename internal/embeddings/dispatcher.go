package embeddings

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DispatcherConfig controls batching and retry behavior.
type DispatcherConfig struct {
	BatchSize   int
	MaxAttempts int
	BackoffBase time.Duration
	MaxInFlight int
	Timeout     time.Duration
}

// FailedText records a single text whose embedding could not be produced
// after exhausting retries. The caller decides how to isolate it.
type FailedText struct {
	Index int
	Err   error
}

func (f FailedText) Error() string {
	return fmt.Sprintf("text %d: %v", f.Index, f.Err)
}

// Dispatcher batches texts to an Embedder with retries and failure isolation.
// A failing batch is split in half and retried so one bad text cannot sink
// its whole batch. The in-flight limit is shared across all callers.
type Dispatcher struct {
	embedder Embedder
	cfg      DispatcherConfig
	inFlight chan struct{}
}

// NewDispatcher wraps an embedder with batching and retry logic.
func NewDispatcher(e Embedder, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	return &Dispatcher{
		embedder: e,
		cfg:      cfg,
		inFlight: make(chan struct{}, cfg.MaxInFlight),
	}
}

func (d *Dispatcher) Embedder() Embedder { return d.embedder }

// EmbedAll embeds every text, returning a vector slice aligned with the
// input. Positions that failed permanently are nil in the result and
// reported in failed. An error is returned only when the context ends.
func (d *Dispatcher) EmbedAll(ctx context.Context, texts []string) (vectors [][]float32, failed []FailedText, err error) {
	vectors = make([][]float32, len(texts))

	for start := 0; start < len(texts); start += d.cfg.BatchSize {
		end := start + d.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batchFailed, err := d.embedRange(ctx, texts, vectors, start, end)
		if err != nil {
			return nil, nil, err
		}
		failed = append(failed, batchFailed...)
	}
	return vectors, failed, nil
}

// embedRange embeds texts[start:end] into vectors, splitting on failure.
func (d *Dispatcher) embedRange(ctx context.Context, texts []string, vectors [][]float32, start, end int) ([]FailedText, error) {
	if start >= end {
		return nil, nil
	}

	vecs, err := d.embedWithRetry(ctx, texts[start:end])
	if err == nil {
		copy(vectors[start:end], vecs)
		return nil, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Single text exhausted its retries: record and move on.
	if end-start == 1 {
		log.Printf("embedding failed permanently for text %d: %v", start, err)
		return []FailedText{{Index: start, Err: err}}, nil
	}

	// Split the batch to isolate the failing text.
	mid := start + (end-start)/2
	log.Printf("embedding batch [%d:%d) failed, splitting: %v", start, end, err)
	left, err := d.embedRange(ctx, texts, vectors, start, mid)
	if err != nil {
		return nil, err
	}
	right, err := d.embedRange(ctx, texts, vectors, mid, end)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

func (d *Dispatcher) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := d.cfg.BackoffBase * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vecs, err := d.embedOnce(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("exhausted %d attempts: %w", d.cfg.MaxAttempts, lastErr)
}

func (d *Dispatcher) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case d.inFlight <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-d.inFlight }()

	callCtx := ctx
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	vecs, err := d.embedder.Embed(callCtx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder %s returned %d vectors for %d texts", d.embedder.Name(), len(vecs), len(texts))
	}
	return vecs, nil
}
