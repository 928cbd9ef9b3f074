package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildrelay/internal/content"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEvent(id string) content.Event {
	return content.Event{
		EventID:       id,
		Type:          content.EventUpdated,
		ContentID:     "c-" + id,
		ContentType:   content.TypeArticle,
		ProviderName:  "contentful",
		ClientID:      "acme",
		Priority:      content.PriorityMedium,
		RequiresBuild: true,
		Timestamp:     time.Now().UTC(),
	}
}

func TestPutReceiptDuplicateSignal(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	created, err := s.PutReceipt(ctx, "shopify", "evt-1", "hash", time.Hour)
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.PutReceipt(ctx, "shopify", "evt-1", "hash", time.Hour)
	require.NoError(t, err)
	require.False(t, created, "second insert must signal duplicate")

	// Different provider, same event id, is not a duplicate.
	created, err = s.PutReceipt(ctx, "contentful", "evt-1", "hash", time.Hour)
	require.NoError(t, err)
	require.True(t, created)
}

func TestPurgeExpiredReceipts(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	_, err := s.PutReceipt(ctx, "shopify", "old", "h", -time.Minute)
	require.NoError(t, err)
	_, err = s.PutReceipt(ctx, "shopify", "fresh", "h", time.Hour)
	require.NoError(t, err)

	removed, err := s.PurgeExpiredReceipts(ctx, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	r, err := s.GetReceipt(ctx, "shopify", "fresh")
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestUpsertContentReportsPrior(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	item := content.Content{
		ID: "p1", Type: content.TypeProduct, Status: content.StatusPublished,
		ProviderName: "shopify", ProviderType: content.ProviderTypeEcommerce,
		CreatedAt: time.Now(), UpdatedAt: time.Now(), SyncedAt: time.Now(),
	}

	hadPrior, err := s.UpsertContent(ctx, item)
	require.NoError(t, err)
	require.False(t, hadPrior)

	item.Status = content.StatusArchived
	hadPrior, err = s.UpsertContent(ctx, item)
	require.NoError(t, err)
	require.True(t, hadPrior)

	got, err := s.GetContent(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, content.StatusArchived, got.Status)
}

func TestListContentsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now()

	for _, it := range []content.Content{
		{ID: "a", Type: content.TypeArticle, Status: content.StatusPublished, ProviderName: "contentful", ProviderType: content.ProviderTypeCMS, CreatedAt: now, UpdatedAt: now, SyncedAt: now},
		{ID: "b", Type: content.TypeProduct, Status: content.StatusPublished, ProviderName: "shopify", ProviderType: content.ProviderTypeEcommerce, CreatedAt: now, UpdatedAt: now, SyncedAt: now},
		{ID: "c", Type: content.TypeProduct, Status: content.StatusDraft, ProviderName: "shopify", ProviderType: content.ProviderTypeEcommerce, CreatedAt: now, UpdatedAt: now, SyncedAt: now},
	} {
		_, err := s.UpsertContent(ctx, it)
		require.NoError(t, err)
	}

	products, err := s.ListContents(ctx, ContentFilter{Type: content.TypeProduct})
	require.NoError(t, err)
	require.Len(t, products, 2)

	published, err := s.ListContents(ctx, ContentFilter{Provider: "shopify", Status: content.StatusPublished})
	require.NoError(t, err)
	require.Len(t, published, 1)
	require.Equal(t, "b", published[0].ID)
}

func TestSingleActiveBatchInvariant(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	b := &Batch{
		BatchID: "b1", ClientID: "acme", EventCount: 1,
		Events: []content.Event{testEvent("e1")}, CreatedAt: now, UpdatedAt: now,
		ScheduledBuildTime: now.Add(30 * time.Second), BatchWindowSeconds: 30,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	require.NoError(t, s.CreateBatch(ctx, b))

	loser := *b
	loser.BatchID = "b2"
	err := s.CreateBatch(ctx, &loser)
	require.ErrorIs(t, err, ErrActiveBatchExists)

	// A second client is unaffected.
	other := *b
	other.BatchID = "b3"
	other.ClientID = "globex"
	require.NoError(t, s.CreateBatch(ctx, &other))

	// Once the first batch leaves active, the slot frees up.
	ok, err := s.MarkBuilding(ctx, "b1")
	require.NoError(t, err)
	require.True(t, ok)

	again := *b
	again.BatchID = "b4"
	require.NoError(t, s.CreateBatch(ctx, &again))
}

func TestExtendBatchCAS(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	b := &Batch{
		BatchID: "b1", ClientID: "acme", EventCount: 1,
		Events: []content.Event{testEvent("e1")}, CreatedAt: now, UpdatedAt: now,
		ScheduledBuildTime: now.Add(30 * time.Second), BatchWindowSeconds: 30,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	require.NoError(t, s.CreateBatch(ctx, b))

	ok, err := s.ExtendBatch(ctx, "b1", 1, []content.Event{testEvent("e2"), testEvent("e3")})
	require.NoError(t, err)
	require.True(t, ok)

	// Stale expected count loses the swap.
	ok, err = s.ExtendBatch(ctx, "b1", 1, []content.Event{testEvent("e4")})
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.GetBatch(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, 3, got.EventCount)
	require.Len(t, got.Events, 3)
	require.Equal(t, "e1", got.Events[0].EventID, "events stay in append order")
}

func TestExtendRefusesNonActive(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	b := &Batch{
		BatchID: "b1", ClientID: "acme", EventCount: 1,
		Events: []content.Event{testEvent("e1")}, CreatedAt: now, UpdatedAt: now,
		ScheduledBuildTime: now, BatchWindowSeconds: 30, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.CreateBatch(ctx, b))

	ok, err := s.MarkBuilding(ctx, "b1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.ExtendBatch(ctx, "b1", 1, []content.Event{testEvent("e2")})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBatchLifecycleTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	b := &Batch{
		BatchID: "b1", ClientID: "acme", EventCount: 1,
		Events: []content.Event{testEvent("e1")}, CreatedAt: now, UpdatedAt: now,
		ScheduledBuildTime: now, BatchWindowSeconds: 30, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.CreateBatch(ctx, b))

	// Double MarkBuilding: second is a benign no-op.
	ok, err := s.MarkBuilding(ctx, "b1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.MarkBuilding(ctx, "b1")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.CompleteBatch(ctx, "b1", "build-42")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetBatch(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, BatchCompleted, got.Status)
	require.Equal(t, "build-42", got.BuildID)

	// Completed batches cannot fail.
	ok, err = s.FailBatch(ctx, "b1", "late error")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFailBatchFromActive(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	b := &Batch{
		BatchID: "b1", ClientID: "acme", EventCount: 1,
		Events: []content.Event{testEvent("e1")}, CreatedAt: now, UpdatedAt: now,
		ScheduledBuildTime: now, BatchWindowSeconds: 30, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.CreateBatch(ctx, b))

	ok, err := s.FailBatch(ctx, "b1", "build service unreachable")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetBatch(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, BatchFailed, got.Status)
	require.Equal(t, "build service unreachable", got.LastError)
}

func TestGetBatchNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetBatch(t.Context(), "nope")
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestGetActiveBatchNilWhenNone(t *testing.T) {
	s := newTestStore(t)
	b, err := s.GetActiveBatch(t.Context(), "acme")
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestListOverdueBatches(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	overdue := &Batch{
		BatchID: "b-late", ClientID: "acme", EventCount: 1,
		Events: []content.Event{testEvent("e1")}, CreatedAt: now.Add(-2 * time.Minute), UpdatedAt: now,
		ScheduledBuildTime: now.Add(-time.Minute), BatchWindowSeconds: 30,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	require.NoError(t, s.CreateBatch(ctx, overdue))

	fresh := &Batch{
		BatchID: "b-fresh", ClientID: "globex", EventCount: 1,
		Events: []content.Event{testEvent("e2")}, CreatedAt: now, UpdatedAt: now,
		ScheduledBuildTime: now.Add(30 * time.Second), BatchWindowSeconds: 30,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	require.NoError(t, s.CreateBatch(ctx, fresh))

	late, err := s.ListOverdueBatches(ctx, now)
	require.NoError(t, err)
	require.Len(t, late, 1)
	require.Equal(t, "b-late", late[0].BatchID)

	// A batch that already left active is not overdue.
	_, err = s.MarkBuilding(ctx, "b-late")
	require.NoError(t, err)
	late, err = s.ListOverdueBatches(ctx, now)
	require.NoError(t, err)
	require.Empty(t, late)
}
