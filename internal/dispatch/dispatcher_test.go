package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildrelay/internal/content"
	berrors "git.home.luguber.info/inful/buildrelay/internal/errors"
	"git.home.luguber.info/inful/buildrelay/internal/retry"
	"git.home.luguber.info/inful/buildrelay/internal/store"
)

type fakeBuildService struct {
	calls []BuildContext
	err   error
}

func (f *fakeBuildService) StartBuild(_ context.Context, bc BuildContext) (string, error) {
	f.calls = append(f.calls, bc)
	if f.err != nil {
		return "", f.err
	}
	return "build-1", nil
}

type fakeTriggers struct {
	cancelled []string
}

func (f *fakeTriggers) Cancel(id string) { f.cancelled = append(f.cancelled, id) }

func newBatchStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedBatch(t *testing.T, s *store.Store, events []content.Event) *store.Batch {
	t.Helper()
	now := time.Now().UTC()
	b := &store.Batch{
		BatchID: "b1", ClientID: "acme", EventCount: len(events), Events: events,
		CreatedAt: now, UpdatedAt: now, ScheduledBuildTime: now.Add(30 * time.Second),
		BatchWindowSeconds: 30, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.CreateBatch(t.Context(), b))
	return b
}

func evts(n int, typ content.EventType, ctype content.Type) []content.Event {
	out := make([]content.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, content.Event{
			EventID:      string(rune('a' + i)),
			Type:         typ,
			ContentID:    "c" + string(rune('a'+i)),
			ContentType:  ctype,
			ProviderName: "shopify",
			ClientID:     "acme",
		})
	}
	return out
}

func TestTriggerImmediateAggregatesContext(t *testing.T) {
	builds := &fakeBuildService{}
	d := New(newBatchStore(t), builds, &fakeTriggers{}, nil, nil, 100, nil)

	events := evts(3, content.EventUpdated, content.TypeProduct)
	buildID, err := d.TriggerImmediate(t.Context(), "acme", events, "priority_bypass")
	require.NoError(t, err)
	require.Equal(t, "build-1", buildID)

	require.Len(t, builds.calls, 1)
	bc := builds.calls[0]
	require.Equal(t, BuildImmediate, bc.BuildType)
	require.Equal(t, 3, bc.TotalEvents)
	require.Equal(t, 3, bc.ContentTypeCounts["product"])
	require.Equal(t, 3, bc.ProviderCounts["shopify"])
	require.False(t, bc.RequiresFullRebuild)
}

func TestDeletionForcesFullRebuild(t *testing.T) {
	builds := &fakeBuildService{}
	d := New(newBatchStore(t), builds, &fakeTriggers{}, nil, nil, 100, nil)

	_, err := d.TriggerImmediate(t.Context(), "acme",
		evts(1, content.EventDeleted, content.TypePage), "test")
	require.NoError(t, err)
	require.True(t, builds.calls[0].RequiresFullRebuild)
}

func TestCollectionEventForcesFullRebuild(t *testing.T) {
	builds := &fakeBuildService{}
	d := New(newBatchStore(t), builds, &fakeTriggers{}, nil, nil, 100, nil)

	_, err := d.TriggerImmediate(t.Context(), "acme",
		evts(1, content.EventCollectionUpdated, content.TypeCollection), "test")
	require.NoError(t, err)
	require.True(t, builds.calls[0].RequiresFullRebuild)
}

func TestLargeEventCountForcesFullRebuild(t *testing.T) {
	builds := &fakeBuildService{}
	d := New(newBatchStore(t), builds, &fakeTriggers{}, nil, nil, 5, nil)

	_, err := d.TriggerImmediate(t.Context(), "acme",
		evts(6, content.EventUpdated, content.TypeArticle), "test")
	require.NoError(t, err)
	require.True(t, builds.calls[0].RequiresFullRebuild)
}

func TestTriggerBatchHappyPath(t *testing.T) {
	s := newBatchStore(t)
	events := evts(2, content.EventUpdated, content.TypeArticle)
	seedBatch(t, s, events)

	builds := &fakeBuildService{}
	triggers := &fakeTriggers{}
	d := New(s, builds, triggers, nil, nil, 100, nil)

	buildID, err := d.TriggerBatch(t.Context(), "b1")
	require.NoError(t, err)
	require.Equal(t, "build-1", buildID)

	got, err := s.GetBatch(t.Context(), "b1")
	require.NoError(t, err)
	require.Equal(t, store.BatchCompleted, got.Status)
	require.Equal(t, "build-1", got.BuildID)
	require.Equal(t, []string{"b1"}, triggers.cancelled)

	require.Equal(t, BuildBatch, builds.calls[0].BuildType)
	require.Equal(t, 2, builds.calls[0].TotalEvents)
}

// extendingStore appends events to the batch just before the building
// transition, the window a concurrent webhook delivery can land in.
type extendingStore struct {
	*store.Store
	extra []content.Event
}

func (e *extendingStore) MarkBuilding(ctx context.Context, batchID string) (bool, error) {
	b, err := e.Store.GetBatch(ctx, batchID)
	if err != nil {
		return false, err
	}
	ok, err := e.Store.ExtendBatch(ctx, batchID, b.EventCount, e.extra)
	if err != nil || !ok {
		return false, err
	}
	return e.Store.MarkBuilding(ctx, batchID)
}

func TestTriggerBatchIncludesEventsAppendedBeforeTransition(t *testing.T) {
	s := newBatchStore(t)
	seedBatch(t, s, evts(2, content.EventUpdated, content.TypeArticle))

	late := evts(2, content.EventUpdated, content.TypeProduct)
	for i := range late {
		late[i].EventID = "late-" + late[i].EventID
		late[i].ContentID = "late-" + late[i].ContentID
	}
	builds := &fakeBuildService{}
	d := New(&extendingStore{Store: s, extra: late}, builds, &fakeTriggers{}, nil, nil, 100, nil)

	_, err := d.TriggerBatch(t.Context(), "b1")
	require.NoError(t, err)

	require.Len(t, builds.calls, 1)
	require.Equal(t, 4, builds.calls[0].TotalEvents,
		"events extended onto the batch before it went building must be built")
	require.Equal(t, 2, builds.calls[0].ContentTypeCounts["product"])

	got, err := s.GetBatch(t.Context(), "b1")
	require.NoError(t, err)
	require.Equal(t, store.BatchCompleted, got.Status)
	require.Equal(t, 4, got.EventCount)
}

func TestTriggerBatchNotActiveIsBenign(t *testing.T) {
	s := newBatchStore(t)
	seedBatch(t, s, evts(1, content.EventUpdated, content.TypeArticle))
	ok, err := s.MarkBuilding(t.Context(), "b1")
	require.NoError(t, err)
	require.True(t, ok)

	builds := &fakeBuildService{}
	d := New(s, builds, &fakeTriggers{}, nil, nil, 100, nil)

	_, err = d.TriggerBatch(t.Context(), "b1")
	require.Error(t, err)
	require.True(t, berrors.HasCategory(err, berrors.CategoryConflict))
	require.Empty(t, builds.calls, "no build invoked for non-active batch")
}

func TestTriggerBatchFailureMarksFailed(t *testing.T) {
	s := newBatchStore(t)
	seedBatch(t, s, evts(1, content.EventUpdated, content.TypeArticle))

	builds := &fakeBuildService{err: errors.New("builder down")}
	triggers := &fakeTriggers{}
	d := New(s, builds, triggers, nil, nil, 100, nil)

	_, err := d.TriggerBatch(t.Context(), "b1")
	require.Error(t, err)

	got, err := s.GetBatch(t.Context(), "b1")
	require.NoError(t, err)
	require.Equal(t, store.BatchFailed, got.Status)
	require.Contains(t, got.LastError, "builder down")
	require.Equal(t, []string{"b1"}, triggers.cancelled)
}

func TestTriggerBatchUnknownID(t *testing.T) {
	d := New(newBatchStore(t), &fakeBuildService{}, &fakeTriggers{}, nil, nil, 100, nil)
	_, err := d.TriggerBatch(t.Context(), "missing")
	require.Error(t, err)
}

func TestHTTPBuildService(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var bc BuildContext
		require.NoError(t, json.NewDecoder(r.Body).Decode(&bc))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"buildId":"bld-77"}`))
	}))
	defer srv.Close()

	svc := NewHTTPBuildService(srv.URL, "tok", 5*time.Second)
	buildID, err := svc.StartBuild(t.Context(), BuildContext{BuildType: BuildImmediate, ClientID: "acme"})
	require.NoError(t, err)
	require.Equal(t, "bld-77", buildID)
	require.Equal(t, "Bearer tok", gotAuth)
}

func TestHTTPBuildServiceNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewHTTPBuildService(srv.URL, "", time.Second).
		WithRetryPolicy(retry.NewPolicy(retry.BackoffFixed, time.Millisecond, time.Millisecond, 0))
	_, err := svc.StartBuild(t.Context(), BuildContext{})
	require.Error(t, err)
	require.True(t, berrors.HasCategory(err, berrors.CategoryBuild))
}

func TestHTTPBuildServiceRetriesTransientFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"buildId":"bld-2"}`))
	}))
	defer srv.Close()

	svc := NewHTTPBuildService(srv.URL, "", time.Second).
		WithRetryPolicy(retry.NewPolicy(retry.BackoffFixed, time.Millisecond, time.Millisecond, 2))
	buildID, err := svc.StartBuild(t.Context(), BuildContext{})
	require.NoError(t, err)
	require.Equal(t, "bld-2", buildID)
	require.Equal(t, 2, attempts)
}

func TestHTTPBuildServiceDoesNotRetryClientError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := NewHTTPBuildService(srv.URL, "", time.Second).
		WithRetryPolicy(retry.NewPolicy(retry.BackoffFixed, time.Millisecond, time.Millisecond, 3))
	_, err := svc.StartBuild(t.Context(), BuildContext{})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}
