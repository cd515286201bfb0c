package analysis

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/basket/sentinel/internal/settings"
)

// Instantiator builds an InferenceRunner for a catalog model definition.
// It is the Classifier Cache's only collaborator; swapping it is how a real
// ONNX runtime gets wired in without this package knowing about it.
type Instantiator interface {
	Instantiate(ctx context.Context, def settings.ModelDef) (InferenceRunner, error)
}

// Classifier is one memoized, ready-to-use model handle.
type Classifier struct {
	ModelID string
	Def     settings.ModelDef
	Runner  InferenceRunner
}

// Cache lazily instantiates and memoizes classifiers by model id.
// Concurrent Get calls for the same id share a single instantiation; a
// failed instantiation is never memoized, so the next Get retries it.
type Cache struct {
	instantiator Instantiator
	group        singleflight.Group

	mu          sync.RWMutex
	classifiers map[string]*Classifier
}

// NewCache returns a Cache backed by instantiator.
func NewCache(instantiator Instantiator) *Cache {
	return &Cache{
		instantiator: instantiator,
		classifiers:  make(map[string]*Classifier),
	}
}

// Get returns the memoized classifier for modelID, instantiating it if
// necessary.
func (c *Cache) Get(ctx context.Context, modelID string) (*Classifier, error) {
	c.mu.RLock()
	if cl, ok := c.classifiers[modelID]; ok {
		c.mu.RUnlock()
		return cl, nil
	}
	c.mu.RUnlock()

	def, ok := settings.ModelCatalog[modelID]
	if !ok {
		return nil, fmt.Errorf("analysis: unknown model id %q", modelID)
	}

	v, err, _ := c.group.Do(modelID, func() (any, error) {
		runner, err := c.instantiator.Instantiate(ctx, def)
		if err != nil {
			return nil, err
		}
		cl := &Classifier{ModelID: modelID, Def: def, Runner: runner}
		c.mu.Lock()
		c.classifiers[modelID] = cl
		c.mu.Unlock()
		return cl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Classifier), nil
}
