package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/vision"
)

// Store is the backing store of enrolled identities. An error is never an
// empty result.
type Store interface {
	ListApproved(ctx context.Context) ([]models.Identity, error)
}

// Snapshot is an immutable view of the matchable identities. Embeddings[i]
// belongs to Identities[i].
type Snapshot struct {
	Identities  []models.Identity
	Embeddings  []vision.Embedding
	RefreshedAt time.Time
}

func (s *Snapshot) Len() int {
	return len(s.Identities)
}

func (s *Snapshot) Empty() bool {
	return len(s.Identities) == 0
}

// Contains reports whether the identity is part of this snapshot.
func (s *Snapshot) Contains(id uuid.UUID) bool {
	for _, ident := range s.Identities {
		if ident.ID == id {
			return true
		}
	}
	return false
}

func newSnapshot(identities []models.Identity, at time.Time) *Snapshot {
	snap := &Snapshot{RefreshedAt: at}
	for _, ident := range identities {
		if !ident.Matchable() {
			continue
		}
		emb := make(vision.Embedding, len(ident.Embedding))
		copy(emb, ident.Embedding)
		ident.Embedding = emb
		snap.Identities = append(snap.Identities, ident)
		snap.Embeddings = append(snap.Embeddings, emb)
	}
	return snap
}

// Cache serves the latest gallery snapshot to the frame loop without blocking
// on I/O. Refreshes replace the snapshot atomically.
type Cache struct {
	store   Store
	current atomic.Pointer[Snapshot]
	now     func() time.Time

	// refreshMu serialises refreshes so a slow load that started earlier
	// cannot replace a snapshot loaded after it.
	refreshMu sync.Mutex
}

func NewCache(store Store) *Cache {
	c := &Cache{store: store, now: time.Now}
	c.current.Store(&Snapshot{})
	return c
}

// Current returns the last materialised snapshot. It is empty, never nil,
// before the first successful refresh.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Refresh loads approved identities and swaps in a new snapshot. On error the
// previous snapshot stays in place.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	identities, err := c.store.ListApproved(ctx)
	if err != nil {
		observability.GalleryRefreshFailures.Inc()
		return c.Current(), fmt.Errorf("refresh gallery: %w", err)
	}

	snap := newSnapshot(identities, c.now())
	c.current.Store(snap)
	observability.GallerySize.Set(float64(snap.Len()))
	return snap, nil
}

// Run refreshes immediately and then on every interval tick until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	c.refreshAndLog(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshAndLog(ctx)
		}
	}
}

func (c *Cache) refreshAndLog(ctx context.Context) {
	prev := c.Current()
	snap, err := c.Refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("gallery refresh failed, serving previous snapshot",
			"error", err,
			"identities", snap.Len(),
			"refreshed_at", snap.RefreshedAt,
		)
		return
	}
	if snap.Len() != prev.Len() {
		slog.Info("gallery refreshed", "identities", snap.Len())
	}
}
