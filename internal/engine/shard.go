package engine

import (
	"hash/fnv"
	"sync"
)

// shardCount is fixed rather than growing with the user population, so
// per-user serialization never leaks memory as new users show up.
const shardCount = 64

// keyedLock serializes processing per user without keeping one mutex alive
// per user forever: userIDs hash down into a small, fixed set of shards.
// Two different users can collide onto the same shard, which only costs
// extra (harmless) serialization, never incorrect concurrency.
type keyedLock struct {
	shards [shardCount]sync.Mutex
}

func (k *keyedLock) shardFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &k.shards[h.Sum32()%shardCount]
}

func (k *keyedLock) Lock(key string)   { k.shardFor(key).Lock() }
func (k *keyedLock) Unlock(key string) { k.shardFor(key).Unlock() }
