package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/God-Lion/seeker-authcore/issuer"
	"github.com/God-Lion/seeker-authcore/issuer/mock"
	"github.com/God-Lion/seeker-authcore/tokenstore"
)

func seededStore(t *testing.T) *tokenstore.Store {
	t.Helper()
	s := tokenstore.New(0)
	err := s.SetTokens(tokenstore.Record{
		AccessToken:  "stale-access",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("SetTokens() error = %v", err)
	}
	return s
}

func TestCoordinator_AtMostOneRefresh(t *testing.T) {
	store := seededStore(t)

	var calls int64
	release := make(chan struct{})
	iss := mock.NewMockIssuer()
	iss.RefreshFunc = func(ctx context.Context, refreshToken string) (*issuer.Credentials, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return &issuer.Credentials{
			AccessToken:  "fresh-access",
			RefreshToken: "refresh-2",
			ExpiresAt:    time.Now().Add(time.Hour),
		}, nil
	}

	c := New(store, iss, 0, nil)

	const n = 5
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)

	for k := 0; k < n; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			results[k], errs[k] = c.Refresh(context.Background())
		}(k)
	}

	// Let all five goroutines reach the coordinator before releasing
	deadline := time.Now().Add(2 * time.Second)
	for !c.Refreshing() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("issuer Refresh calls = %d, want exactly 1", got)
	}
	for k := 0; k < n; k++ {
		if errs[k] != nil {
			t.Errorf("caller %d error = %v", k, errs[k])
		}
		if results[k] != "fresh-access" {
			t.Errorf("caller %d token = %q, want fresh-access", k, results[k])
		}
	}

	got, _ := store.AccessToken()
	if got != "fresh-access" {
		t.Errorf("store access token = %q, want fresh-access", got)
	}
	gotRefresh, _ := store.RefreshToken()
	if gotRefresh != "refresh-2" {
		t.Errorf("store refresh token = %q, want rotated refresh-2", gotRefresh)
	}
}

func TestCoordinator_NoLostWaitersOnFailure(t *testing.T) {
	store := seededStore(t)

	release := make(chan struct{})
	refreshErr := errors.New("invalid refresh token")
	iss := mock.NewMockIssuer()
	iss.RefreshFunc = func(ctx context.Context, refreshToken string) (*issuer.Credentials, error) {
		<-release
		return nil, refreshErr
	}

	c := New(store, iss, 0, nil)

	var failures int64
	c.OnFailure = func(err error) { atomic.AddInt64(&failures, 1) }

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for k := 0; k < n; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			_, errs[k] = c.Refresh(context.Background())
		}(k)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !c.Refreshing() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for k := 0; k < n; k++ {
		if errs[k] == nil {
			t.Errorf("caller %d got nil error, want rejection", k)
			continue
		}
		if !errors.Is(errs[k], ErrRefreshFailed) {
			t.Errorf("caller %d error = %v, want ErrRefreshFailed", k, errs[k])
		}
	}

	if _, ok := store.AccessToken(); ok {
		t.Error("store should be cleared after refresh failure")
	}
	if got := atomic.LoadInt64(&failures); got != 1 {
		t.Errorf("OnFailure calls = %d, want 1", got)
	}
}

func TestCoordinator_NoRefreshToken(t *testing.T) {
	store := tokenstore.New(0)
	iss := mock.NewMockIssuer()
	c := New(store, iss, 0, nil)

	_, err := c.Refresh(context.Background())
	if !errors.Is(err, ErrRefreshFailed) {
		t.Errorf("Refresh() error = %v, want ErrRefreshFailed", err)
	}
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("Refresh() error = %v, want ErrNoRefreshToken", err)
	}
	if iss.Calls("Refresh") != 0 {
		t.Error("issuer should not be called without a refresh token")
	}
}

func TestCoordinator_ObserverHooks(t *testing.T) {
	store := seededStore(t)

	release := make(chan struct{})
	iss := mock.NewMockIssuer()
	iss.RefreshFunc = func(ctx context.Context, refreshToken string) (*issuer.Credentials, error) {
		<-release
		return &issuer.Credentials{
			AccessToken:  "fresh-access",
			RefreshToken: "refresh-2",
			ExpiresAt:    time.Now().Add(time.Hour),
		}, nil
	}

	c := New(store, iss, 0, nil)

	type observed struct {
		success bool
		elapsed time.Duration
	}
	var waiterCalls int64
	outcomes := make(chan observed, 1)
	c.OnWaiter = func() { atomic.AddInt64(&waiterCalls, 1) }
	c.OnOutcome = func(success bool, elapsed time.Duration) {
		outcomes <- observed{success: success, elapsed: elapsed}
	}

	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		leaderDone <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !c.Refreshing() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	waiterDone := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		waiterDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-leaderDone; err != nil {
		t.Fatalf("leader error = %v", err)
	}
	if err := <-waiterDone; err != nil {
		t.Fatalf("waiter error = %v", err)
	}

	if got := atomic.LoadInt64(&waiterCalls); got != 1 {
		t.Errorf("OnWaiter calls = %d, want 1", got)
	}
	out := <-outcomes
	if !out.success {
		t.Error("OnOutcome success = false, want true")
	}
	if out.elapsed <= 0 {
		t.Errorf("OnOutcome elapsed = %v, want > 0", out.elapsed)
	}
	select {
	case <-outcomes:
		t.Error("OnOutcome fired more than once for a single batch")
	default:
	}
}

func TestCoordinator_CallerAbortDoesNotCancelSharedRefresh(t *testing.T) {
	store := seededStore(t)

	release := make(chan struct{})
	iss := mock.NewMockIssuer()
	iss.RefreshFunc = func(ctx context.Context, refreshToken string) (*issuer.Credentials, error) {
		<-release
		// The shared call must not observe the aborted waiter's cancellation
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("refresh context cancelled: %w", err)
		}
		return &issuer.Credentials{
			AccessToken:  "fresh-access",
			RefreshToken: "refresh-2",
			ExpiresAt:    time.Now().Add(time.Hour),
		}, nil
	}

	c := New(store, iss, 0, nil)

	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		leaderDone <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !c.Refreshing() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// A waiter joins then aborts
	waiterCtx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		_, err := c.Refresh(waiterCtx)
		waiterDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-waiterDone; !errors.Is(err, context.Canceled) {
		t.Errorf("aborted waiter error = %v, want context.Canceled", err)
	}

	close(release)
	if err := <-leaderDone; err != nil {
		t.Errorf("leader error = %v, want nil (refresh must complete)", err)
	}

	got, _ := store.AccessToken()
	if got != "fresh-access" {
		t.Errorf("store access token = %q, want fresh-access", got)
	}
}

func TestCoordinator_OnSuccessHook(t *testing.T) {
	store := seededStore(t)
	iss := mock.NewMockIssuer()
	c := New(store, iss, 0, nil)

	var gotRecord tokenstore.Record
	c.OnSuccess = func(record tokenstore.Record) { gotRecord = record }

	token, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if gotRecord.AccessToken != token {
		t.Errorf("OnSuccess record token = %q, want %q", gotRecord.AccessToken, token)
	}
}

func TestCoordinator_SequentialRefreshes(t *testing.T) {
	// The coordinator returns to Idle after each batch; a later caller
	// triggers a new network call.
	store := seededStore(t)
	iss := mock.NewMockIssuer()
	c := New(store, iss, 0, nil)

	for k := 0; k < 3; k++ {
		if _, err := c.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh() %d error = %v", k, err)
		}
	}
	if got := iss.Calls("Refresh"); got != 3 {
		t.Errorf("issuer Refresh calls = %d, want 3", got)
	}
	if c.Refreshing() {
		t.Error("coordinator should be idle after completion")
	}
}
