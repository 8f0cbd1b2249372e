package guard

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/intersect-mbo/treasury-indexer/internal/logger"
	"github.com/intersect-mbo/treasury-indexer/internal/store"
)

// DefaultCacheLimit bounds the in-process hash cache.
const DefaultCacheLimit = 10000

// DuplicateGuard answers "has this transaction hash been applied before"
// using a fast in-process cache over the authoritative durable store. The
// cache is an optimization only; the unique constraint on the transaction
// table is the arbiter under concurrency.
type DuplicateGuard struct {
	store store.Store

	seen  sync.Map
	size  atomic.Int64
	limit int64
}

// NewDuplicateGuard creates a guard over the given store. limit <= 0 selects
// the default cache bound.
func NewDuplicateGuard(s store.Store, limit int64) *DuplicateGuard {
	if limit <= 0 {
		limit = DefaultCacheLimit
	}
	return &DuplicateGuard{
		store: s,
		limit: limit,
	}
}

// IsDuplicate reports whether txHash has already been applied. A cache miss
// falls through to the durable store and populates the cache on a hit there.
func (g *DuplicateGuard) IsDuplicate(ctx context.Context, txHash string) (bool, error) {
	if _, ok := g.seen.Load(txHash); ok {
		return true, nil
	}

	tx, err := g.store.GetTransactionByHash(ctx, txHash)
	if err != nil {
		return false, err
	}
	if tx == nil {
		return false, nil
	}

	g.remember(txHash)
	return true, nil
}

// MarkProcessed records txHash in the cache after a successful application.
func (g *DuplicateGuard) MarkProcessed(txHash string) {
	g.remember(txHash)
}

// remember inserts the hash, dropping the whole cache when the bound is hit.
// Dropping everything keeps the guard correct (the durable check still runs)
// at the cost of a brief latency spike.
func (g *DuplicateGuard) remember(txHash string) {
	if _, loaded := g.seen.LoadOrStore(txHash, struct{}{}); loaded {
		return
	}
	if g.size.Add(1) > g.limit {
		g.seen.Range(func(key, _ interface{}) bool {
			g.seen.Delete(key)
			return true
		})
		g.size.Store(0)
		logger.Warn("duplicate guard cache dropped at capacity",
			zap.Int64("limit", g.limit))
	}
}

// CacheSize returns the approximate number of cached hashes.
func (g *DuplicateGuard) CacheSize() int64 {
	return g.size.Load()
}
