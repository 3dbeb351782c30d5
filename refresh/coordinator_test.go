package refresh_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/internal/metrics"
	"github.com/jrsteele09/rhr-session/refresh"
	"github.com/jrsteele09/rhr-session/session"
	sessionrepofakes "github.com/jrsteele09/rhr-session/session/repofakes"
	"github.com/jrsteele09/rhr-session/tenants"
	"github.com/jrsteele09/rhr-session/users"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeExchanger struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	respond func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	mu     sync.Mutex
	tokens []string
	ctxErr error
}

func newFakeExchanger(respond func(ctx context.Context, refreshToken string) (*oauth2.Token, error)) *fakeExchanger {
	return &fakeExchanger{
		release: make(chan struct{}),
		started: make(chan struct{}, 16),
		respond: respond,
	}
}

// unblocked returns an exchanger that answers immediately.
func unblocked(respond func(ctx context.Context, refreshToken string) (*oauth2.Token, error)) *fakeExchanger {
	ex := newFakeExchanger(respond)
	close(ex.release)
	return ex
}

func (f *fakeExchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.tokens = append(f.tokens, refreshToken)
	f.mu.Unlock()
	f.started <- struct{}{}
	<-f.release
	f.mu.Lock()
	f.ctxErr = ctx.Err()
	f.mu.Unlock()
	return f.respond(ctx, refreshToken)
}

func rotate(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	switch refreshToken {
	case "refresh-1":
		return &oauth2.Token{AccessToken: "new", RefreshToken: "refresh-2"}, nil
	case "refresh-2":
		return &oauth2.Token{AccessToken: "newer", RefreshToken: "refresh-3"}, nil
	}
	return nil, errors.New("token_not_valid")
}

// countingStore records how many callers have read the session.
type countingStore struct {
	*session.Store
	reads atomic.Int32
}

func (s *countingStore) Get() session.Session {
	s.reads.Add(1)
	return s.Store.Get()
}

type testFixture struct {
	store *countingStore
	repo  *sessionrepofakes.FakeSessionRepo
}

func setupTestFixture(t *testing.T, refreshToken string) *testFixture {
	t.Helper()
	repo := sessionrepofakes.NewFakeSessionRepo()
	store, err := session.NewStore(context.Background(), repo)
	require.NoError(t, err)
	require.NoError(t, store.SetAuthenticated(context.Background(), session.Authenticated{
		Principal:    &users.User{ID: "u-1", Email: "ada@example.com"},
		AccessToken:  "old",
		RefreshToken: refreshToken,
		Memberships:  []users.TenantMembership{{ID: "m-1", Tenant: tenants.Tenant{ID: "t-1"}}},
	}))
	return &testFixture{store: &countingStore{Store: store}, repo: repo}
}

func TestConcurrentCallersShareOneExchange(t *testing.T) {
	fx := setupTestFixture(t, "refresh-1")
	ex := newFakeExchanger(rotate)
	coord := refresh.NewCoordinator(fx.store, ex)
	sharedBefore := testutil.ToFloat64(metrics.RefreshSharedWaiters)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*oauth2.Token, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.Refresh(context.Background())
		}(i)
	}

	<-ex.started
	require.Eventually(t, func() bool { return fx.store.reads.Load() == callers }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(ex.release)
	wg.Wait()

	require.Equal(t, int32(1), ex.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "new", results[i].AccessToken)
		require.Equal(t, "refresh-2", results[i].RefreshToken)
	}
	// The caller that ran the exchange is not a shared waiter.
	require.Equal(t, sharedBefore+callers-1, testutil.ToFloat64(metrics.RefreshSharedWaiters))

	s := fx.store.Get()
	require.Equal(t, "new", s.AccessToken)
	require.Equal(t, "refresh-2", s.RefreshToken)
	require.Equal(t, "new", fx.repo.Persisted().AccessToken)
}

func TestFailureIsSharedByAllWaiters(t *testing.T) {
	fx := setupTestFixture(t, "bad")
	ex := newFakeExchanger(rotate)
	coord := refresh.NewCoordinator(fx.store, ex)

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coord.Refresh(context.Background())
		}(i)
	}

	<-ex.started
	require.Eventually(t, func() bool { return fx.store.reads.Load() == callers }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(ex.release)
	wg.Wait()

	require.Equal(t, int32(1), ex.calls.Load())
	for _, err := range errs {
		require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
		require.ErrorContains(t, err, "token_not_valid")
		require.Equal(t, errs[0], err)

		var failed *refresh.FailedError
		require.ErrorAs(t, err, &failed)
		require.Equal(t, "bad", failed.RefreshToken)
	}
	require.Equal(t, "old", fx.store.Get().AccessToken)
	require.Equal(t, "bad", fx.store.Get().RefreshToken)
}

func TestNoRefreshTokenSkipsExchange(t *testing.T) {
	fx := setupTestFixture(t, "")
	ex := unblocked(rotate)
	coord := refresh.NewCoordinator(fx.store, ex)

	_, err := coord.Refresh(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNoRefreshToken)
	require.Equal(t, int32(0), ex.calls.Load())

	var failed *refresh.FailedError
	require.ErrorAs(t, err, &failed)
	require.Empty(t, failed.RefreshToken)
}

func TestFailureNamesTokenReadAtFlightStart(t *testing.T) {
	fx := setupTestFixture(t, "refresh-1")
	require.NoError(t, fx.store.SetTokens(context.Background(), "rotated", "refresh-9"))
	coord := refresh.NewCoordinator(fx.store, unblocked(rotate))

	_, err := coord.Refresh(context.Background())

	var failed *refresh.FailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, "refresh-9", failed.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
}

func TestNextRefreshStartsNewExchange(t *testing.T) {
	fx := setupTestFixture(t, "refresh-1")
	ex := unblocked(rotate)
	coord := refresh.NewCoordinator(fx.store, ex)

	tok, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "new", tok.AccessToken)

	tok, err = coord.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "newer", tok.AccessToken)
	require.Equal(t, int32(2), ex.calls.Load())
	require.Equal(t, []string{"refresh-1", "refresh-2"}, ex.tokens)
}

func TestResponseWithoutRotationKeepsRefreshToken(t *testing.T) {
	fx := setupTestFixture(t, "refresh-1")
	ex := unblocked(func(context.Context, string) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "new"}, nil
	})
	coord := refresh.NewCoordinator(fx.store, ex)

	tok, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "refresh-1", tok.RefreshToken)
	require.Equal(t, "refresh-1", fx.store.Get().RefreshToken)
	require.Equal(t, "new", fx.store.Get().AccessToken)
}

func TestAbandoningCallerDoesNotCancelExchange(t *testing.T) {
	fx := setupTestFixture(t, "refresh-1")
	ex := newFakeExchanger(rotate)
	coord := refresh.NewCoordinator(fx.store, ex)

	ctx, cancel := context.WithCancel(context.Background())
	abandoned := make(chan error, 1)
	go func() {
		_, err := coord.Refresh(ctx)
		abandoned <- err
	}()
	<-ex.started

	waiter := make(chan *oauth2.Token, 1)
	go func() {
		tok, _ := coord.Refresh(context.Background())
		waiter <- tok
	}()
	require.Eventually(t, func() bool { return fx.store.reads.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-abandoned, context.Canceled)

	close(ex.release)
	tok := <-waiter
	require.NotNil(t, tok)
	require.Equal(t, "new", tok.AccessToken)
	require.NoError(t, ex.ctxErr)
	require.Equal(t, "new", fx.store.Get().AccessToken)
	require.Equal(t, int32(1), ex.calls.Load())
}

func TestExchangeTimeout(t *testing.T) {
	fx := setupTestFixture(t, "refresh-1")
	ex := unblocked(func(ctx context.Context, _ string) (*oauth2.Token, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	coord := refresh.NewCoordinator(fx.store, ex, refresh.WithTimeout(20*time.Millisecond))

	_, err := coord.Refresh(context.Background())
	require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPanickingExchangeSettlesFlight(t *testing.T) {
	fx := setupTestFixture(t, "refresh-1")
	var panicked atomic.Bool
	ex := unblocked(func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		if panicked.CompareAndSwap(false, true) {
			panic("boom")
		}
		return rotate(ctx, refreshToken)
	})
	coord := refresh.NewCoordinator(fx.store, ex)

	_, err := coord.Refresh(context.Background())
	require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	require.ErrorContains(t, err, "boom")

	tok, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "new", tok.AccessToken)
}

func TestRefreshSettlingAfterLogoutFails(t *testing.T) {
	fx := setupTestFixture(t, "refresh-1")
	ex := newFakeExchanger(rotate)
	coord := refresh.NewCoordinator(fx.store, ex)

	done := make(chan error, 1)
	go func() {
		_, err := coord.Refresh(context.Background())
		done <- err
	}()
	<-ex.started
	require.NoError(t, fx.store.Clear(context.Background()))
	close(ex.release)

	err := <-done
	require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
	require.False(t, fx.store.Get().IsAuthenticated())
}
