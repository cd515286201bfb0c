package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/basket/sentinel/internal/ingest"
)

// pendingTTL is how long a request-code/complete pair stays alive before the
// sweep evicts it and disconnects its live client.
const pendingTTL = 15 * time.Minute

// pendingEntry is one in-flight user-mode login: the live MTProto client sits
// connected, waiting for the caller to supply the code (and, if needed, the
// 2FA password) via session/complete.
type pendingEntry struct {
	client        ingest.UserClient
	phoneNumber   string
	phoneCodeHash string
	createdAt     time.Time
}

// PendingRegistry is the Pending Session Registry: it bridges the two-step
// session/request-code -> session/complete flow, keyed by an opaque request
// id, with a TTL sweep that disconnects abandoned clients.
type PendingRegistry struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewPendingRegistry returns an empty registry using pendingTTL.
func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{entries: make(map[string]*pendingEntry), ttl: pendingTTL, now: time.Now}
}

// Create registers a freshly code-sent client and returns its request id.
func (p *PendingRegistry) Create(client ingest.UserClient, phoneNumber, phoneCodeHash string) string {
	id := newRequestID()
	p.mu.Lock()
	p.entries[id] = &pendingEntry{
		client:        client,
		phoneNumber:   phoneNumber,
		phoneCodeHash: phoneCodeHash,
		createdAt:     p.now(),
	}
	p.mu.Unlock()
	return id
}

// Get returns the entry for id without removing it.
func (p *PendingRegistry) Get(id string) (*pendingEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	return e, ok
}

// Delete removes id without disconnecting its client; callers that already
// own the client (to keep it alive past this session) call this directly.
func (p *PendingRegistry) Delete(id string) {
	p.mu.Lock()
	delete(p.entries, id)
	p.mu.Unlock()
}

// Sweep disconnects and removes entries older than the TTL.
func (p *PendingRegistry) Sweep() {
	cutoff := p.now().Add(-p.ttl)
	p.mu.Lock()
	var stale []*pendingEntry
	for id, e := range p.entries {
		if e.createdAt.Before(cutoff) {
			stale = append(stale, e)
			delete(p.entries, id)
		}
	}
	p.mu.Unlock()

	for _, e := range stale {
		e.client.Disconnect()
	}
}

// Count returns the number of tracked entries, for tests and diagnostics.
func (p *PendingRegistry) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(buf)
}
