package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestLazy_InitOnce(t *testing.T) {
	var mu sync.Mutex
	builds := 0
	l := NewLazy(8, func() (Embedder, error) {
		mu.Lock()
		builds++
		mu.Unlock()
		return NewMockEmbedder(8), nil
	})
	if l.Dimensions() != 8 {
		t.Errorf("Dimensions=%d", l.Dimensions())
	}
	if builds != 0 {
		t.Fatal("provider built before first use")
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.EmbedBatch(context.Background(), []string{"x"}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if builds != 1 {
		t.Errorf("builds=%d, want 1", builds)
	}
	if err := l.Close(); err != nil {
		t.Error(err)
	}
}

func TestLazy_InitError(t *testing.T) {
	boom := errors.New("no model")
	l := NewLazy(4, func() (Embedder, error) { return nil, boom })
	if _, err := l.Embed(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("expected init error, got %v", err)
	}
	if _, err := l.EmbedBatch(context.Background(), []string{"x"}); !errors.Is(err, boom) {
		t.Errorf("expected init error again, got %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close after failed init: %v", err)
	}
}

func TestLazy_CloseUnused(t *testing.T) {
	l := NewLazy(4, func() (Embedder, error) {
		t.Fatal("should not build")
		return nil, nil
	})
	if err := l.Close(); err != nil {
		t.Error(err)
	}
}
