package rotation_test

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/rotation"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// fakeLinkRepo is an in-memory pool with the same contract as the Postgres
// repository: the increment is atomic and SetActive leaves at most one active row.
type fakeLinkRepo struct {
	mu    sync.Mutex
	links map[uuid.UUID]*models.Link

	incrementCalls int
}

func newFakeLinkRepo(links ...models.Link) *fakeLinkRepo {
	repo := &fakeLinkRepo{links: map[uuid.UUID]*models.Link{}}
	for i := range links {
		l := links[i]
		repo.links[l.ID] = &l
	}
	return repo
}

func (f *fakeLinkRepo) ListByPosition(ctx context.Context) ([]models.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Link, 0, len(f.links))
	for _, l := range f.links {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeLinkRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.links[id]
	if !ok {
		return nil, repositories.ErrLinkNotFound
	}
	copied := *l
	return &copied, nil
}

func (f *fakeLinkRepo) IncrementVerified(ctx context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.incrementCalls++
	l, ok := f.links[id]
	if !ok {
		return 0, repositories.ErrLinkNotFound
	}
	l.VerifiedCount++
	return l.VerifiedCount, nil
}

func (f *fakeLinkRepo) SetActive(ctx context.Context, activeID *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, l := range f.links {
		l.Active = activeID != nil && l.ID == *activeID
	}
	return nil
}

func (f *fakeLinkRepo) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, l := range f.links {
		if l.Active {
			count++
		}
	}
	return count
}

func makeLink(position, threshold, verified int) models.Link {
	return models.Link{
		ID:            uuid.New(),
		URL:           "https://example.com/ref/" + uuid.New().String()[:8],
		Threshold:     threshold,
		VerifiedCount: verified,
		Position:      position,
	}
}

func TestCoordinator_AssignReturnsActiveLink(t *testing.T) {
	link1 := makeLink(0, 2, 0)
	link2 := makeLink(1, 2, 0)
	repo := newFakeLinkRepo(link1, link2)
	coordinator := rotation.NewCoordinator(repo, nil, getTestLogger())

	assignment, err := coordinator.Assign(context.Background())
	require.NoError(t, err)
	assert.Equal(t, link1.ID, assignment.LinkID)
	assert.Equal(t, link1.URL, assignment.URL)
	assert.False(t, assignment.Fallback)
}

func TestCoordinator_AssignEmptyPool(t *testing.T) {
	repo := newFakeLinkRepo()
	coordinator := rotation.NewCoordinator(repo, nil, getTestLogger())

	_, err := coordinator.Assign(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, rotation.ErrNoLinksConfigured)
}

func TestCoordinator_AssignFallbackWhenExhausted(t *testing.T) {
	link1 := makeLink(0, 1, 1)
	link2 := makeLink(1, 1, 1)
	link3 := makeLink(2, 1, 1)
	repo := newFakeLinkRepo(link1, link2, link3)
	coordinator := rotation.NewCoordinator(repo, nil, getTestLogger())

	assignment, err := coordinator.Assign(context.Background())
	require.NoError(t, err)
	assert.Equal(t, link3.ID, assignment.LinkID, "fallback should be the highest-position link")
	assert.True(t, assignment.Fallback)

	status, err := coordinator.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status.ActiveID, "no link should be active when all thresholds are met")
}

func TestCoordinator_RecordCompletionAdvancesRotation(t *testing.T) {
	link1 := makeLink(0, 2, 0)
	link2 := makeLink(1, 2, 0)
	repo := newFakeLinkRepo(link1, link2)
	coordinator := rotation.NewCoordinator(repo, nil, getTestLogger())

	ctx := context.Background()

	assignment, err := coordinator.Assign(ctx)
	require.NoError(t, err)
	require.Equal(t, link1.ID, assignment.LinkID)

	// first completion: below threshold, link 1 stays active
	result, err := coordinator.RecordCompletion(ctx, link1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewCount)
	require.NotNil(t, result.NewActiveID)
	assert.Equal(t, link1.ID, *result.NewActiveID)
	assert.False(t, result.Rotated)

	// second completion: threshold reached, rotation advances to link 2
	result, err = coordinator.RecordCompletion(ctx, link1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewCount)
	require.NotNil(t, result.NewActiveID)
	assert.Equal(t, link2.ID, *result.NewActiveID)
	assert.True(t, result.Rotated)

	// a late completion against the retired link still counts but does not rotate
	result, err = coordinator.RecordCompletion(ctx, link1.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.NewCount)
	require.NotNil(t, result.NewActiveID)
	assert.Equal(t, link2.ID, *result.NewActiveID)
	assert.False(t, result.Rotated)

	assert.Equal(t, 1, repo.activeCount(), "at most one link may be active")
}

func TestCoordinator_RecordCompletionUnknownLink(t *testing.T) {
	link1 := makeLink(0, 2, 0)
	repo := newFakeLinkRepo(link1)
	coordinator := rotation.NewCoordinator(repo, nil, getTestLogger())

	_, err := coordinator.RecordCompletion(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, rotation.ErrLinkNotFound)

	link, err := repo.GetByID(context.Background(), link1.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, link.VerifiedCount, "no mutation on unknown link id")
}

func TestCoordinator_StatusInvariant(t *testing.T) {
	link1 := makeLink(0, 1, 0)
	link2 := makeLink(1, 1, 0)
	repo := newFakeLinkRepo(link1, link2)
	coordinator := rotation.NewCoordinator(repo, nil, getTestLogger())

	ctx := context.Background()

	status, err := coordinator.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.ActiveID)
	assert.Equal(t, link1.ID, *status.ActiveID)
	require.Len(t, status.Links, 2)
	assert.Equal(t, link1.ID, status.Links[0].ID, "links are ordered by position")

	_, err = coordinator.RecordCompletion(ctx, link1.ID)
	require.NoError(t, err)

	status, err = coordinator.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.ActiveID)
	assert.Equal(t, link2.ID, *status.ActiveID)
	assert.LessOrEqual(t, repo.activeCount(), 1)
}

func TestCoordinator_ConcurrentCompletions(t *testing.T) {
	link1 := makeLink(0, 100, 0)
	repo := newFakeLinkRepo(link1)
	coordinator := rotation.NewCoordinator(repo, nil, getTestLogger())

	ctx := context.Background()
	const workers = 20
	const perWorker = 5

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				_, err := coordinator.RecordCompletion(ctx, link1.ID)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	link, err := repo.GetByID(ctx, link1.ID)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, link.VerifiedCount, "no increment may be dropped")
	assert.Equal(t, workers*perWorker, repo.incrementCalls)
}

func TestCoordinator_RefreshCachesUnlessForced(t *testing.T) {
	link1 := makeLink(0, 2, 0)
	repo := newFakeLinkRepo(link1)
	coordinator := rotation.NewCoordinator(repo, nil, getTestLogger())

	ctx := context.Background()

	require.NoError(t, coordinator.Refresh(ctx, false))

	// mutate the store behind the snapshot's back
	_, err := repo.IncrementVerified(ctx, link1.ID)
	require.NoError(t, err)
	_, err = repo.IncrementVerified(ctx, link1.ID)
	require.NoError(t, err)

	// unforced refresh keeps the stale cache; Status forces and sees the store
	require.NoError(t, coordinator.Refresh(ctx, false))
	status, err := coordinator.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.ActiveID, "forced refresh must observe the exhausted pool")
}
