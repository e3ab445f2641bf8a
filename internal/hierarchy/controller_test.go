package hierarchy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/pubsub"
)

func newTestController(t *testing.T, remote Remote, opts ...ControllerOption) *Controller {
	t.Helper()
	c := NewController(NewResolver(remote), opts...)
	t.Cleanup(c.Close)
	return c
}

func TestController_NoQueryReturnsNothing(t *testing.T) {
	remote := new(mockRemote)
	c := newTestController(t, remote)

	require.Empty(t, c.RootNodes(context.Background(), true))
	require.Equal(t, StateIdle, c.Snapshot().State)
	remote.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestController_NoFetchBeforeResolution(t *testing.T) {
	remote := new(mockRemote)
	c := newTestController(t, remote)
	c.SetQuery("q", testSite)

	require.Empty(t, c.RootNodes(context.Background(), false))
	require.Equal(t, StateIdle, c.Snapshot().State)
	remote.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestController_ResolvesOnceAndCaches(t *testing.T) {
	remote := new(mockRemote)
	remote.On("Execute", mock.Anything, "q", testSite).Return([]issue.Skeleton{
		{Key: "S1", ParentKey: "P1"},
	}, nil).Once()
	remote.On("FetchByKey", mock.Anything, "P1", testSite).Return(issue.Skeleton{Key: "P1"}, nil).Once()

	c := newTestController(t, remote)
	c.SetQuery("q", testSite)

	first := c.RootNodes(context.Background(), true)
	require.Equal(t, "P1{S1}", shape(first))

	// Resolved: no further remote calls, even when fetching is not allowed.
	require.Equal(t, "P1{S1}", shape(c.RootNodes(context.Background(), false)))
	require.Equal(t, "P1{S1}", shape(c.RootNodes(context.Background(), true)))
	remote.AssertExpectations(t)

	children := c.ChildrenOf(first[0])
	require.Len(t, children, 1)
	require.Equal(t, "S1", children[0].Key())
	require.Empty(t, c.ChildrenOf(children[0]))
	require.Nil(t, c.ChildrenOf(nil))

	snap := c.Snapshot()
	require.Equal(t, StateResolved, snap.State)
	require.NoError(t, snap.Err)
	require.False(t, snap.Partial())
	require.NotEmpty(t, snap.RunID)
}

func TestController_LateFlightReusesCommittedForest(t *testing.T) {
	remote := newPoolRemote([]issue.Skeleton{{Key: "S1", ParentKey: "P1"}}, issue.Skeleton{Key: "P1"})
	c := newTestController(t, remote)
	c.SetQuery("q", testSite)
	require.Equal(t, "P1{S1}", shape(c.RootNodes(context.Background(), true)))

	// A caller that saw the resolving state before the first flight
	// committed starts its own flight for the same generation.
	gen := c.Snapshot().Generation
	require.Equal(t, "P1{S1}", shape(c.run(context.Background(), gen, "q", testSite)))
	require.Equal(t, 1, remote.queries)
	require.Equal(t, 1, remote.fetched["P1"])
	require.Equal(t, gen, c.Snapshot().Generation)
}

func TestController_ChildrenOfOrdersSubtasksBeforeEpicChildren(t *testing.T) {
	remote := newPoolRemote([]issue.Skeleton{
		{Key: "E", EpicName: "E"},
		{Key: "A", EpicLink: "E"},
		{Key: "B", ParentKey: "E"},
	})
	c := newTestController(t, remote)
	c.SetQuery("q", testSite)

	roots := c.RootNodes(context.Background(), true)
	require.Len(t, roots, 1)
	require.Equal(t, []string{"B", "A"}, []string{c.ChildrenOf(roots[0])[0].Key(), c.ChildrenOf(roots[0])[1].Key()})
}

func TestController_InvalidateReResolves(t *testing.T) {
	remote := newPoolRemote([]issue.Skeleton{{Key: "A"}})
	c := newTestController(t, remote)
	c.SetQuery("q", testSite)

	c.RootNodes(context.Background(), true)
	c.Invalidate()
	require.Equal(t, StateIdle, c.Snapshot().State)
	require.Empty(t, c.RootNodes(context.Background(), false))

	require.Equal(t, "A", shape(c.RootNodes(context.Background(), true)))
	require.Equal(t, 2, remote.queries)
}

func TestController_Refresh(t *testing.T) {
	remote := newPoolRemote([]issue.Skeleton{{Key: "A"}})
	c := newTestController(t, remote)
	c.SetQuery("q", testSite)

	c.RootNodes(context.Background(), true)
	require.Equal(t, "A", shape(c.Refresh(context.Background())))
	require.Equal(t, 2, remote.queries)
}

func TestController_QueryErrorSurfacesInSnapshot(t *testing.T) {
	remote := new(mockRemote)
	remote.On("Execute", mock.Anything, "bad", testSite).Return(nil, errors.New("400 bad jql")).Once()

	c := newTestController(t, remote)
	c.SetQuery("bad", testSite)

	require.Empty(t, c.RootNodes(context.Background(), true))

	snap := c.Snapshot()
	require.Equal(t, StateResolved, snap.State)
	var qerr *QueryError
	require.ErrorAs(t, snap.Err, &qerr)

	// The failure is cached like any other outcome until invalidated.
	require.Empty(t, c.RootNodes(context.Background(), true))
	remote.AssertExpectations(t)
}

func TestController_PartialFlag(t *testing.T) {
	remote := newPoolRemote([]issue.Skeleton{{Key: "S1", ParentKey: "GONE"}})
	c := newTestController(t, remote)
	c.SetQuery("q", testSite)

	require.Equal(t, "S1", shape(c.RootNodes(context.Background(), true)))
	snap := c.Snapshot()
	require.True(t, snap.Partial())
	require.Len(t, snap.Warnings, 1)
}

func TestController_FlatMode(t *testing.T) {
	remote := newPoolRemote([]issue.Skeleton{{Key: "S1", ParentKey: "P1"}, {Key: "S2", EpicLink: "E1"}})
	c := newTestController(t, remote, WithNestSubtasks(false))
	c.SetQuery("q", testSite)

	require.Equal(t, "S1 S2", shape(c.RootNodes(context.Background(), true)))
	require.Zero(t, remote.totalFetches())
}

func TestController_ConcurrentCallersShareOneRun(t *testing.T) {
	release := make(chan time.Time)
	remote := new(mockRemote)
	remote.On("Execute", mock.Anything, "q", testSite).
		WaitUntil(release).
		Return([]issue.Skeleton{{Key: "A"}}, nil).Once()

	c := newTestController(t, remote)
	c.SetQuery("q", testSite)

	const callers = 5
	var wg sync.WaitGroup
	got := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = shape(c.RootNodes(context.Background(), true))
		}()
	}

	require.Eventually(t, func() bool {
		return c.Snapshot().State == StateResolving
	}, time.Second, time.Millisecond)
	// Give every caller time to join the in-flight run.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, g := range got {
		require.Equal(t, "A", g)
	}
	remote.AssertExpectations(t)
}

func TestController_SupersededResolutionIsDiscarded(t *testing.T) {
	release := make(chan time.Time)
	remote := new(mockRemote)
	remote.On("Execute", mock.Anything, "old", testSite).
		WaitUntil(release).
		Return([]issue.Skeleton{{Key: "OLD"}}, nil).Once()
	remote.On("Execute", mock.Anything, "new", testSite).
		Return([]issue.Skeleton{{Key: "NEW"}}, nil).Once()

	c := newTestController(t, remote)
	c.SetQuery("old", testSite)

	done := make(chan []*Node)
	go func() { done <- c.RootNodes(context.Background(), true) }()

	require.Eventually(t, func() bool {
		return c.Snapshot().State == StateResolving
	}, time.Second, time.Millisecond)

	c.SetQuery("new", testSite)
	close(release)

	require.Empty(t, <-done, "stale result must not be served")
	snap := c.Snapshot()
	require.Equal(t, StateIdle, snap.State)
	require.Equal(t, "new", snap.Query)
	require.Empty(t, snap.Roots)

	require.Equal(t, "NEW", shape(c.RootNodes(context.Background(), true)))
	remote.AssertExpectations(t)
}

func TestController_CallerCancellationDoesNotAbandonRun(t *testing.T) {
	release := make(chan time.Time)
	remote := new(mockRemote)
	remote.On("Execute", mock.Anything, "q", testSite).
		WaitUntil(release).
		Return([]issue.Skeleton{{Key: "A"}}, nil).Once()

	c := newTestController(t, remote)
	c.SetQuery("q", testSite)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []*Node)
	go func() { done <- c.RootNodes(ctx, true) }()

	require.Eventually(t, func() bool {
		return c.Snapshot().State == StateResolving
	}, time.Second, time.Millisecond)
	cancel()
	require.Empty(t, <-done)

	close(release)
	require.Eventually(t, func() bool {
		return c.Snapshot().State == StateResolved
	}, time.Second, time.Millisecond)
	require.Equal(t, "A", shape(c.RootNodes(context.Background(), false)))
}

func TestController_PublishesChangeEvents(t *testing.T) {
	remote := newPoolRemote([]issue.Skeleton{{Key: "A"}})
	c := newTestController(t, remote)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := c.Subscribe(ctx)

	c.SetQuery("q", testSite)
	c.RootNodes(context.Background(), true)
	c.Invalidate()

	var got []pubsub.EventType
	for i := 0; i < 3; i++ {
		select {
		case ev := <-events:
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for change event")
		}
	}
	require.Equal(t, []pubsub.EventType{
		pubsub.InvalidatedEvent,
		pubsub.ResolvedEvent,
		pubsub.InvalidatedEvent,
	}, got)
}
