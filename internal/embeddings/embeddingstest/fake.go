// Package embeddingstest provides an in-memory Embedder for tests.
package embeddingstest

import (
	"context"
	"errors"
	"sync"
)

var ErrUnknownText = errors.New("embeddingstest: no vector for text")

// Fake returns the vector registered for each text. Texts without a vector get
// Default, or ErrUnknownText when Default is nil.
type Fake struct {
	Vectors map[string][]float32
	Default []float32
	// FailOn makes any batch containing this text fail with Err.
	FailOn string
	Err    error

	mu      sync.Mutex
	calls   int
	batches [][]string
}

func (f *Fake) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.batches = append(f.batches, append([]string(nil), texts...))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.Err != nil && (f.FailOn == "" || f.FailOn == t) {
			return nil, f.Err
		}
		v, ok := f.Vectors[t]
		if !ok {
			if f.Default == nil {
				return nil, ErrUnknownText
			}
			v = f.Default
		}
		out[i] = v
	}
	return out, nil
}

// Calls reports how many EmbedBatch calls were made.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Batches returns the texts of every call, in call order.
func (f *Fake) Batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}
