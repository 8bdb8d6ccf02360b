package usecase

import (
	"fmt"
	"sync"
	"time"

	"CandleSync/internal/domain/models"
	"CandleSync/pkg/util"

	"github.com/benbjohnson/clock"
)

// DedupGuard admits at most one gap-fill at a time and never the same key twice
// in a row. A holder older than staleAfter no longer blocks new keys.
type DedupGuard struct {
	mu         sync.Mutex
	clock      clock.Clock
	staleAfter time.Duration

	key        string
	inFlight   bool
	gen        uint64
	acquiredAt time.Time
}

// NewDedupGuard creates a guard. staleAfter <= 0 disables staleness.
func NewDedupGuard(clk clock.Clock, staleAfter time.Duration) *DedupGuard {
	if clk == nil {
		clk = clock.New()
	}
	return &DedupGuard{clock: clk, staleAfter: staleAfter}
}

// TryAcquire is an atomic check-and-set. On success the caller must invoke
// release exactly once; extra calls are ignored.
func (g *DedupGuard) TryAcquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if key == g.key {
		return nil, false
	}
	if g.inFlight && !g.stale() {
		return nil, false
	}

	g.gen++
	gen := g.gen
	g.key = key
	g.inFlight = true
	g.acquiredAt = g.clock.Now()

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.gen == gen {
			g.inFlight = false
		}
	}, true
}

// Reset forgets the last key and drops any holder.
func (g *DedupGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	g.key = ""
	g.inFlight = false
}

// InFlight reports whether a live holder exists.
func (g *DedupGuard) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight && !g.stale()
}

// LastKey returns the most recently admitted key.
func (g *DedupGuard) LastKey() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.key
}

func (g *DedupGuard) stale() bool {
	return g.staleAfter > 0 && g.clock.Since(g.acquiredAt) >= g.staleAfter
}

// BuildSyncKey identifies a gap-fill request. Bounds are aligned to the
// timeframe bucket so sub-candle pans map to the same key.
func BuildSyncKey(tf models.Timeframe, r models.VisibleRange) string {
	from, to := util.AlignRange(r.From, r.To, tf.Duration())
	return fmt.Sprintf("%s:%d:%d", tf, from, to)
}
