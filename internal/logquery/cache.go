package logquery

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Epoch is the cache invalidation token. Every cached envelope lives in a
// group derived from the current epoch; writers (ingest, retention, log
// clears) call Bump and all previously cached results become unreachable
// at once. Nothing ever enumerates or deletes individual keys.
type Epoch struct {
	base string
	n    atomic.Uint64
}

// NewEpoch returns an epoch seeded from the current time so restarts never
// resurrect entries from a previous process image.
func NewEpoch() *Epoch {
	return &Epoch{base: fmt.Sprintf("%x", time.Now().UnixNano())}
}

// Current returns the active epoch token.
func (e *Epoch) Current() string {
	return fmt.Sprintf("%s-%d", e.base, e.n.Load())
}

// Bump rotates the epoch, invalidating every cached query result, and
// returns the new token.
func (e *Epoch) Bump() string {
	e.n.Add(1)
	return e.Current()
}

// ResultCache stores computed result envelopes keyed by the normalized
// spec plus the viewer identity, grouped by epoch. Entries also expire by
// TTL so a stale page is time-bounded even if no writer bumps the epoch.
//
// Cached envelopes are shared: callers must treat them as read-only.
type ResultCache struct {
	lru   *expirable.LRU[string, *Result]
	epoch *Epoch
}

// NewResultCache builds a cache holding up to size envelopes for at most
// ttl each.
func NewResultCache(size int, ttl time.Duration, epoch *Epoch) *ResultCache {
	if size <= 0 {
		size = 512
	}
	return &ResultCache{
		lru:   expirable.NewLRU[string, *Result](size, nil, ttl),
		epoch: epoch,
	}
}

// Key hashes the normalized spec and viewer id into the current epoch's
// group. Two requests that normalize identically share an entry; two
// viewers never do, since permissions differ.
func (c *ResultCache) Key(spec *QuerySpec, viewer Viewer) string {
	payload, _ := json.Marshal(spec)
	sum := sha256.Sum256(append(payload, []byte(fmt.Sprintf("|viewer:%d", viewer.ID))...))
	return c.epoch.Current() + "|" + hex.EncodeToString(sum[:])
}

// Get returns the cached envelope for key, flagged as a cache hit.
func (c *ResultCache) Get(key string) (*Result, bool) {
	stored, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	hit := *stored
	hit.CachedResult = true
	return &hit, true
}

// Put stores a computed envelope under key.
func (c *ResultCache) Put(key string, res *Result) {
	c.lru.Add(key, res)
}
