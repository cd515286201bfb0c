package analysis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/basket/sentinel/internal/settings"
)

type countingInstantiator struct {
	calls int64
	fail  bool
}

func (c *countingInstantiator) Instantiate(context.Context, settings.ModelDef) (InferenceRunner, error) {
	atomic.AddInt64(&c.calls, 1)
	if c.fail {
		return nil, fmt.Errorf("boom")
	}
	return zeroRunner{}, nil
}

func TestCache_ConcurrentGetSharesOneInstantiation(t *testing.T) {
	inst := &countingInstantiator{}
	cache := NewCache(inst)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), settings.DefaultModelID()); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&inst.calls); got != 1 {
		t.Fatalf("expected exactly 1 instantiation, got %d", got)
	}
}

func TestCache_UnknownModelID(t *testing.T) {
	cache := NewCache(&countingInstantiator{})
	if _, err := cache.Get(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown model id")
	}
}

func TestCache_FailureNotMemoized(t *testing.T) {
	inst := &countingInstantiator{fail: true}
	cache := NewCache(inst)

	if _, err := cache.Get(context.Background(), settings.DefaultModelID()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := cache.Get(context.Background(), settings.DefaultModelID()); err == nil {
		t.Fatal("expected error on retry")
	}
	if got := atomic.LoadInt64(&inst.calls); got != 2 {
		t.Fatalf("expected failed instantiation to be retried, got %d calls", got)
	}
}
