// Package rotation owns the link rotation policy: which link new leads are
// assigned and when the pool advances to the next one.
package rotation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

var (
	// ErrNoLinksConfigured is returned by Assign when the pool is empty
	ErrNoLinksConfigured = errors.New("no links configured")

	// ErrLinkNotFound mirrors the repository sentinel so callers only import this package
	ErrLinkNotFound = repositories.ErrLinkNotFound
)

const lockKey = "rotation"

// Locker brackets a critical section with a cross-process lock. Satisfied by the
// redis locker's WithLock.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Snapshot is the in-memory view of the pool at the instant it was computed. It
// may go stale between writes; every mutating operation recomputes it.
type Snapshot struct {
	ActiveID    *uuid.UUID    `json:"active_id"`
	Links       []models.Link `json:"links"`
	RefreshedAt time.Time     `json:"refreshed_at"`
}

// Assignment is the result of handing a link to a new lead
type Assignment struct {
	LinkID uuid.UUID `json:"link_id"`
	URL    string    `json:"url"`
	// Fallback is true when every link met its threshold and the highest-position
	// link was assigned anyway
	Fallback bool `json:"fallback"`
}

// CompletionResult reports the outcome of recording one completion
type CompletionResult struct {
	NewCount    int        `json:"new_count"`
	NewActiveID *uuid.UUID `json:"new_active_id"`
	// Rotated is true when the completion changed which link is active
	Rotated bool `json:"rotated"`
}

// Coordinator serializes every pool-mutating decision. All operations across all
// leads funnel through its mutex in arrival order, so two concurrent completions
// can never read the same verified count. The repository's transaction around the
// increment is a second line of defense in case a second writer ever reaches the
// store directly, and the optional cross-process lock covers replicas sharing a
// pool.
type Coordinator struct {
	mu       sync.Mutex
	links    repositories.LinkRepo
	locker   Locker
	logger   ectologger.Logger
	lockTTL  time.Duration
	snapshot *Snapshot
}

// NewCoordinator creates a coordinator over the given pool. locker may be nil
// when the service runs as a single instance.
func NewCoordinator(links repositories.LinkRepo, locker Locker, logger ectologger.Logger) *Coordinator {
	return &Coordinator{
		links:   links,
		locker:  locker,
		logger:  logger,
		lockTTL: 10 * time.Second,
	}
}

// Refresh recomputes the snapshot from the store. When a snapshot already exists
// and force is false the cached one is kept.
func (c *Coordinator) Refresh(ctx context.Context, force bool) error {
	ctx, span := tracing.StartSpan(ctx, "rotation.Coordinator.Refresh")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx, force)
}

// refreshLocked requires c.mu to be held
func (c *Coordinator) refreshLocked(ctx context.Context, force bool) error {
	if c.snapshot != nil && !force {
		return nil
	}

	links, err := c.links.ListByPosition(ctx)
	if err != nil {
		return err
	}

	var activeID *uuid.UUID
	for i := range links {
		if !links[i].Exhausted() {
			id := links[i].ID
			activeID = &id
			break
		}
	}

	c.snapshot = &Snapshot{
		ActiveID:    activeID,
		Links:       links,
		RefreshedAt: time.Now().UTC(),
	}
	return nil
}

// Assign picks the link for a new lead: the active link, or the highest-position
// link when every threshold is met. Assignment only fails on an empty pool, so a
// lead is never turned away while any link exists.
func (c *Coordinator) Assign(ctx context.Context) (*Assignment, error) {
	ctx, span := tracing.StartSpan(ctx, "rotation.Coordinator.Assign")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshLocked(ctx, true); err != nil {
		metrics.AssignmentsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	snap := c.snapshot
	if len(snap.Links) == 0 {
		metrics.AssignmentsTotal.WithLabelValues("empty_pool").Inc()
		return nil, ErrNoLinksConfigured
	}

	if snap.ActiveID == nil {
		last := snap.Links[len(snap.Links)-1]
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"link_id": last.ID,
		}).Warn("pool exhausted, assigning highest-position link as fallback")
		metrics.AssignmentsTotal.WithLabelValues("fallback").Inc()
		return &Assignment{LinkID: last.ID, URL: last.URL, Fallback: true}, nil
	}

	for i := range snap.Links {
		if snap.Links[i].ID == *snap.ActiveID {
			metrics.AssignmentsTotal.WithLabelValues("active").Inc()
			return &Assignment{LinkID: snap.Links[i].ID, URL: snap.Links[i].URL}, nil
		}
	}

	// snapshot was just recomputed, so the active id always resolves
	metrics.AssignmentsTotal.WithLabelValues("error").Inc()
	return nil, errors.New("active link missing from snapshot")
}

// RecordCompletion increments the link's verified count by exactly 1, then
// recomputes the snapshot and rewrites the active flags so at most one row
// carries active = true. Completions against retired links still count; they
// just don't change which link is active.
func (c *Coordinator) RecordCompletion(ctx context.Context, linkID uuid.UUID) (*CompletionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "rotation.Coordinator.RecordCompletion")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	var result *CompletionResult
	record := func() error {
		var prevActive *uuid.UUID
		if c.snapshot != nil {
			prevActive = c.snapshot.ActiveID
		}

		newCount, err := c.links.IncrementVerified(ctx, linkID)
		if err != nil {
			return err
		}

		if err := c.refreshLocked(ctx, true); err != nil {
			return err
		}

		newActive := c.snapshot.ActiveID
		if err := c.links.SetActive(ctx, newActive); err != nil {
			return err
		}

		rotated := !uuidPtrEqual(prevActive, newActive)
		if rotated {
			metrics.RotationAdvancesTotal.Inc()
			c.logger.WithContext(ctx).WithFields(map[string]any{
				"link_id":        linkID,
				"new_active_id":  newActive,
				"verified_count": newCount,
			}).Info("rotation advanced")
		}

		result = &CompletionResult{
			NewCount:    newCount,
			NewActiveID: newActive,
			Rotated:     rotated,
		}
		return nil
	}

	var err error
	if c.locker != nil {
		err = c.locker.WithLock(ctx, lockKey, c.lockTTL, record)
	} else {
		err = record()
	}

	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			metrics.CompletionsTotal.WithLabelValues("link_not_found").Inc()
		} else {
			metrics.CompletionsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.CompletionsTotal.WithLabelValues("ok").Inc()
	return result, nil
}

// Status recomputes and returns the snapshot for observability
func (c *Coordinator) Status(ctx context.Context) (*Snapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "rotation.Coordinator.Status")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshLocked(ctx, true); err != nil {
		return nil, err
	}

	// copy so callers can't mutate the cached snapshot
	snap := *c.snapshot
	snap.Links = append([]models.Link(nil), c.snapshot.Links...)
	return &snap, nil
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
