package gateway

import (
	"hash/fnv"
	"sync"
)

// ClientKey buckets rate-limit and lockout state. Target is the endpoint path
// for generic rate limiting or the submitted email for login lockout. The
// wildcard target marks client-wide state such as a permanent block.
type ClientKey struct {
	ClientIP string
	Target   string
}

// WildcardTarget marks state that applies to every request from a client.
const WildcardTarget = "*"

func (k ClientKey) String() string {
	return k.ClientIP + "|" + k.Target
}

// KeyedStore is the shared-state abstraction behind the rate limiter and the
// lockout tracker. Update runs its callback atomically per key, so two
// concurrent failures can never under-count toward a threshold. The in-memory
// implementation below serves single-instance deployments; a multi-instance
// deployment substitutes a shared external store by configuration.
type KeyedStore interface {
	// Update atomically applies fn to the value stored at key. fn receives
	// nil when the key is absent; returning nil deletes the key.
	Update(key string, fn func(cur any) any) any
	Get(key string) (any, bool)
	Delete(key string)
	Range(fn func(key string, v any) bool)
}

const storeShards = 32

// MemoryStore is a striped-lock map. Keys hash to a fixed shard so updates to
// distinct clients rarely contend.
type MemoryStore struct {
	shards [storeShards]*storeShard
}

type storeShard struct {
	mu      sync.Mutex
	entries map[string]any
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &storeShard{entries: make(map[string]any)}
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *storeShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%storeShards]
}

func (s *MemoryStore) Update(key string, fn func(cur any) any) any {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	next := fn(shard.entries[key])
	if next == nil {
		delete(shard.entries, key)
		return nil
	}
	shard.entries[key] = next
	return next
}

func (s *MemoryStore) Get(key string) (any, bool) {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	v, ok := shard.entries[key]
	return v, ok
}

func (s *MemoryStore) Delete(key string) {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.entries, key)
}

// Range visits every entry. Each shard is locked only while its own entries
// are visited. Returning false from fn stops the walk.
func (s *MemoryStore) Range(fn func(key string, v any) bool) {
	for _, shard := range s.shards {
		shard.mu.Lock()
		for k, v := range shard.entries {
			if !fn(k, v) {
				shard.mu.Unlock()
				return
			}
		}
		shard.mu.Unlock()
	}
}
