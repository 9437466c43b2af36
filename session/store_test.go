package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/credential/memslot"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/verifier"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type verifyFunc func(ctx context.Context, credential string) error

func (f verifyFunc) Verify(ctx context.Context, credential string) error { return f(ctx, credential) }

// countingVerifier returns err for every call and records how often it was called.
type countingVerifier struct {
	calls atomic.Int32
	err   error
}

func (c *countingVerifier) Verify(context.Context, string) error {
	c.calls.Add(1)
	return c.err
}

type brokenSlot struct{}

func (brokenSlot) Get(context.Context, string) (string, bool, error) {
	return "", false, fmt.Errorf("%w: disk on fire", credential.ErrStorage)
}

func (brokenSlot) Set(context.Context, string, string) error {
	return fmt.Errorf("%w: disk on fire", credential.ErrStorage)
}

func (brokenSlot) Delete(context.Context, string) error {
	return fmt.Errorf("%w: disk on fire", credential.ErrStorage)
}

type testFixture struct {
	slot     *memslot.Slot
	verifier *countingVerifier
	decoder  *credential.Decoder
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	return &testFixture{
		slot:     memslot.New(),
		verifier: &countingVerifier{},
		decoder:  credential.NewDecoder(func() time.Time { return now }),
	}
}

func (f *testFixture) store(opts ...session.Option) *session.Store {
	return session.New(f.slot, f.decoder, f.verifier, opts...)
}

func (f *testFixture) storeCredential(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, f.slot.Set(context.Background(), credential.DefaultKey, raw))
}

func (f *testFixture) storedCredential(t *testing.T) (string, bool) {
	t.Helper()
	v, ok, err := f.slot.Get(context.Background(), credential.DefaultKey)
	require.NoError(t, err)
	return v, ok
}

func token(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := jwtlib.MapClaims{"exp": exp.Unix(), "email": sub + "@example.com"}
	if sub != "" {
		claims["sub"] = sub
	}
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return raw
}

func requireResolved(t *testing.T, s *session.Store, authenticated bool) {
	t.Helper()
	state := s.State()
	require.False(t, state.IsLoading)
	require.Equal(t, authenticated, state.IsAuthenticated)
	if authenticated {
		require.Equal(t, session.StatusAuthenticated, state.Status)
	} else {
		require.Equal(t, session.StatusUnauthenticated, state.Status)
	}
}

func TestStore_NewIsUninitialized(t *testing.T) {
	f := setupTestFixture(t)
	state := f.store().State()
	require.Equal(t, session.StatusUninitialized, state.Status)
	require.True(t, state.IsLoading)
	require.False(t, state.IsAuthenticated)
	require.Nil(t, state.Claims)
}

func TestStore_Initialize(t *testing.T) {
	ctx := context.Background()

	t.Run("no credential skips the verifier", func(t *testing.T) {
		f := setupTestFixture(t)
		s := f.store()

		out, err := s.Initialize(ctx)
		require.NoError(t, err)
		require.Equal(t, session.OutcomeNoCredential, out.Kind)
		require.Zero(t, f.verifier.calls.Load())
		requireResolved(t, s, false)
		require.Nil(t, s.Claims())
	})

	t.Run("malformed credential is cleared", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeCredential(t, "definitely-not-a-jwt")
		s := f.store()

		out, err := s.Initialize(ctx)
		require.NoError(t, err)
		require.Equal(t, session.OutcomeDecodeFailed, out.Kind)
		require.ErrorIs(t, out.Err, credential.ErrMalformed)
		require.Zero(t, f.verifier.calls.Load())
		requireResolved(t, s, false)

		_, ok := f.storedCredential(t)
		require.False(t, ok)
	})

	t.Run("expired credential never reaches the network", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeCredential(t, token(t, "abc", now.Add(-10*time.Second)))
		s := f.store()

		out, err := s.Initialize(ctx)
		require.NoError(t, err)
		require.Equal(t, session.OutcomeDecodeFailed, out.Kind)
		require.ErrorIs(t, out.Err, credential.ErrExpired)
		require.Zero(t, f.verifier.calls.Load())
		requireResolved(t, s, false)

		_, ok := f.storedCredential(t)
		require.False(t, ok)
	})

	t.Run("verified credential authenticates", func(t *testing.T) {
		f := setupTestFixture(t)
		raw := token(t, "abc", now.Add(time.Hour))
		f.storeCredential(t, raw)
		s := f.store()

		out, err := s.Initialize(ctx)
		require.NoError(t, err)
		require.Equal(t, session.OutcomeAuthenticated, out.Kind)
		require.NoError(t, out.Err)
		require.Equal(t, int32(1), f.verifier.calls.Load())
		requireResolved(t, s, true)

		require.Equal(t, "abc", s.Claims().Subject)
		require.Equal(t, f.decoder.Decode(raw), s.Claims())
		require.Equal(t, s.State(), out.State)

		stored, ok := f.storedCredential(t)
		require.True(t, ok)
		require.Equal(t, raw, stored)
	})

	t.Run("verified credential without subject is not authenticated", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeCredential(t, token(t, "", now.Add(time.Hour)))
		s := f.store()

		out, err := s.Initialize(ctx)
		require.NoError(t, err)
		require.Equal(t, session.OutcomeNoSubject, out.Kind)
		require.False(t, out.State.IsAuthenticated)
		requireResolved(t, s, false)
		require.NotNil(t, s.Claims())
		_, ok := f.storedCredential(t)
		require.True(t, ok)
	})

	t.Run("unauthorized clears the credential", func(t *testing.T) {
		f := setupTestFixture(t)
		f.verifier.err = verifier.ErrUnauthorized
		f.storeCredential(t, token(t, "abc", now.Add(time.Hour)))
		s := f.store()

		out, err := s.Initialize(ctx)
		require.NoError(t, err)
		require.Equal(t, session.OutcomeUnauthorized, out.Kind)
		requireResolved(t, s, false)
		require.Nil(t, s.Claims())

		_, ok := f.storedCredential(t)
		require.False(t, ok)
	})

	t.Run("transport failure clears the credential by default", func(t *testing.T) {
		f := setupTestFixture(t)
		f.verifier.err = &verifier.StatusError{StatusCode: 503}
		f.storeCredential(t, token(t, "abc", now.Add(time.Hour)))
		s := f.store()

		out, err := s.Initialize(ctx)
		require.NoError(t, err)
		require.Equal(t, session.OutcomeTransportFailed, out.Kind)
		require.ErrorIs(t, out.Err, verifier.ErrTransport)
		requireResolved(t, s, false)

		_, ok := f.storedCredential(t)
		require.False(t, ok)
	})

	t.Run("storage failure ends unauthenticated", func(t *testing.T) {
		f := setupTestFixture(t)
		s := session.New(brokenSlot{}, f.decoder, f.verifier)

		out, err := s.Initialize(ctx)
		require.NoError(t, err)
		require.Equal(t, session.OutcomeStorageFailed, out.Kind)
		require.ErrorIs(t, out.Err, credential.ErrStorage)
		requireResolved(t, s, false)
	})

	t.Run("runs only once", func(t *testing.T) {
		f := setupTestFixture(t)
		s := f.store()

		_, err := s.Initialize(ctx)
		require.NoError(t, err)
		_, err = s.Initialize(ctx)
		require.ErrorIs(t, err, session.ErrAlreadyInitialized)
	})

	t.Run("custom key", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.slot.Set(ctx, "other", token(t, "abc", now.Add(time.Hour))))
		s := f.store(session.WithKey("other"))

		out, err := s.Initialize(ctx)
		require.NoError(t, err)
		require.Equal(t, session.OutcomeAuthenticated, out.Kind)
	})
}

func TestStore_TransportPolicy(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	raw := token(t, "abc", now.Add(time.Hour))
	f.storeCredential(t, raw)
	s := f.store(session.WithTransportPolicy(session.KeepSessionOnTransportError))

	_, err := s.Initialize(ctx)
	require.NoError(t, err)
	requireResolved(t, s, true)

	f.verifier.err = fmt.Errorf("%w: connection refused", verifier.ErrTransport)
	out := s.Reload(ctx)
	require.Equal(t, session.OutcomeTransportFailed, out.Kind)
	requireResolved(t, s, true)
	require.Equal(t, "abc", s.Claims().Subject)

	stored, ok := f.storedCredential(t)
	require.True(t, ok)
	require.Equal(t, raw, stored)
}

func TestStore_CancelledVerificationKeepsCredential(t *testing.T) {
	f := setupTestFixture(t)
	raw := token(t, "abc", now.Add(time.Hour))
	f.storeCredential(t, raw)

	ctx, cancel := context.WithCancel(context.Background())
	v := verifyFunc(func(ctx context.Context, _ string) error {
		cancel()
		return fmt.Errorf("%w: %w", verifier.ErrTransport, ctx.Err())
	})
	s := session.New(f.slot, f.decoder, v)

	out, err := s.Initialize(ctx)
	require.NoError(t, err)
	require.Equal(t, session.OutcomeTransportFailed, out.Kind)
	requireResolved(t, s, false)

	_, ok := f.storedCredential(t)
	require.True(t, ok)
}

func TestStore_Reload(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	s := f.store()

	_, err := s.Initialize(ctx)
	require.NoError(t, err)
	requireResolved(t, s, false)

	f.storeCredential(t, token(t, "abc", now.Add(time.Hour)))
	out := s.Reload(ctx)
	require.Equal(t, session.OutcomeAuthenticated, out.Kind)
	requireResolved(t, s, true)

	f.verifier.err = verifier.ErrUnauthorized
	out = s.Reload(ctx)
	require.Equal(t, session.OutcomeUnauthorized, out.Kind)
	requireResolved(t, s, false)
}

func TestStore_SignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and authenticates", func(t *testing.T) {
		f := setupTestFixture(t)
		s := f.store()
		_, err := s.Initialize(ctx)
		require.NoError(t, err)

		raw := token(t, "abc", now.Add(time.Hour))
		out := s.SignIn(ctx, raw)
		require.Equal(t, session.OutcomeAuthenticated, out.Kind)
		requireResolved(t, s, true)

		stored, ok := f.storedCredential(t)
		require.True(t, ok)
		require.Equal(t, raw, stored)
	})

	t.Run("storage failure", func(t *testing.T) {
		f := setupTestFixture(t)
		s := session.New(brokenSlot{}, f.decoder, f.verifier)

		out := s.SignIn(ctx, token(t, "abc", now.Add(time.Hour)))
		require.Equal(t, session.OutcomeStorageFailed, out.Kind)
		requireResolved(t, s, false)
		require.Zero(t, f.verifier.calls.Load())
	})
}

func TestStore_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("from authenticated", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeCredential(t, token(t, "abc", now.Add(time.Hour)))
		s := f.store()
		_, err := s.Initialize(ctx)
		require.NoError(t, err)
		requireResolved(t, s, true)

		require.NoError(t, s.Logout(ctx))
		requireResolved(t, s, false)
		require.Nil(t, s.Claims())
		_, ok := f.storedCredential(t)
		require.False(t, ok)
	})

	t.Run("before initialize", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeCredential(t, token(t, "abc", now.Add(time.Hour)))
		s := f.store()

		require.NoError(t, s.Logout(ctx))
		requireResolved(t, s, false)
		_, ok := f.storedCredential(t)
		require.False(t, ok)
	})

	t.Run("with a cancelled context", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeCredential(t, token(t, "abc", now.Add(time.Hour)))
		s := f.store()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		require.NoError(t, s.Logout(cctx))
		_, ok := f.storedCredential(t)
		require.False(t, ok)
	})
}

func TestStore_LogoutDiscardsInFlightReload(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.storeCredential(t, token(t, "abc", now.Add(time.Hour)))

	entered := make(chan struct{})
	release := make(chan struct{})
	v := verifyFunc(func(context.Context, string) error {
		close(entered)
		<-release
		return nil
	})
	s := session.New(f.slot, f.decoder, v)

	done := make(chan session.Outcome, 1)
	go func() {
		out, _ := s.Initialize(ctx)
		done <- out
	}()

	<-entered
	require.True(t, s.IsLoading())
	require.NoError(t, s.Logout(ctx))
	close(release)

	out := <-done
	require.Equal(t, session.OutcomeSuperseded, out.Kind)
	requireResolved(t, s, false)
	require.Nil(t, s.Claims())
	_, ok := f.storedCredential(t)
	require.False(t, ok)
}

func TestStore_StaleReloadDoesNotOverwriteNewer(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.storeCredential(t, token(t, "abc", now.Add(time.Hour)))

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	v := verifyFunc(func(context.Context, string) error {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
			return nil
		}
		return verifier.ErrUnauthorized
	})
	s := session.New(f.slot, f.decoder, v)

	slow := make(chan session.Outcome, 1)
	go func() { slow <- s.Reload(ctx) }()
	<-entered

	fast := s.Reload(ctx)
	require.Equal(t, session.OutcomeUnauthorized, fast.Kind)

	close(release)
	stale := <-slow
	require.Equal(t, session.OutcomeSuperseded, stale.Kind)
	requireResolved(t, s, false)
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.storeCredential(t, token(t, "abc", now.Add(time.Hour)))
	s := f.store()

	var mu sync.Mutex
	var seen []session.Status
	unsubscribe := s.Subscribe(func(st session.State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st.Status)
		if st.Status == session.StatusLoading {
			require.True(t, st.IsLoading)
		}
	})

	_, err := s.Initialize(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx))

	unsubscribe()
	unsubscribe()
	s.Reload(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []session.Status{
		session.StatusLoading,
		session.StatusAuthenticated,
		session.StatusUnauthenticated,
	}, seen)
}

func waitDone(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not finish", what)
	}
}

func TestStore_SubscriberReadsDuringConcurrentChange(t *testing.T) {
	ctx := context.Background()

	t.Run("state read from a callback while logout publishes", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeCredential(t, token(t, "abc", now.Add(time.Hour)))
		s := f.store()

		entered := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		var mu sync.Mutex
		var seen []session.Status
		s.Subscribe(func(st session.State) {
			once.Do(func() {
				close(entered)
				<-release
			})
			current := s.State()
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, current.Status)
		})

		initDone := make(chan struct{})
		var initOut session.Outcome
		go func() {
			defer close(initDone)
			initOut, _ = s.Initialize(ctx)
		}()
		<-entered

		logoutDone := make(chan struct{})
		var logoutErr error
		go func() {
			defer close(logoutDone)
			logoutErr = s.Logout(ctx)
		}()
		// give Logout time to reach the notification step
		time.Sleep(50 * time.Millisecond)
		close(release)

		waitDone(t, logoutDone, "Logout")
		waitDone(t, initDone, "Initialize")
		require.NoError(t, logoutErr)
		require.Equal(t, session.OutcomeSuperseded, initOut.Kind)
		requireResolved(t, s, false)

		mu.Lock()
		defer mu.Unlock()
		require.NotEmpty(t, seen)
		require.Equal(t, session.StatusUnauthenticated, seen[len(seen)-1])
	})

	t.Run("last notification matches final state", func(t *testing.T) {
		f := setupTestFixture(t)
		f.storeCredential(t, token(t, "abc", now.Add(time.Hour)))
		s := f.store()

		var mu sync.Mutex
		var last session.State
		s.Subscribe(func(st session.State) {
			_ = s.IsAuthenticated()
			_ = s.Claims()
			mu.Lock()
			defer mu.Unlock()
			last = st
		})

		tokens := make([]string, 20)
		for i := range tokens {
			tokens[i] = token(t, fmt.Sprintf("user-%d", i), now.Add(time.Hour))
		}

		done := make(chan struct{})
		var wg sync.WaitGroup
		for i := range tokens {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				switch i % 3 {
				case 0:
					_ = s.Logout(ctx)
				case 1:
					s.SignIn(ctx, tokens[i])
				default:
					s.Reload(ctx)
				}
			}(i)
		}
		go func() {
			wg.Wait()
			close(done)
		}()
		waitDone(t, done, "concurrent changes")

		final := s.State()
		require.False(t, final.IsLoading)
		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, final.Status, last.Status)
		require.Equal(t, final.IsAuthenticated, last.IsAuthenticated)
	})
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.storeCredential(t, token(t, "abc", now.Add(time.Hour)))
	s := f.store()
	_, err := s.Initialize(ctx)
	require.NoError(t, err)

	s.Claims().Subject = "mallory"
	require.Equal(t, "abc", s.Claims().Subject)
}

func TestStore_Close(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	s := f.store()

	called := false
	s.Subscribe(func(session.State) { called = true })
	s.Close()

	_, err := s.Initialize(ctx)
	require.ErrorIs(t, err, session.ErrClosed)
	require.ErrorIs(t, s.Logout(ctx), session.ErrClosed)

	out := s.Reload(ctx)
	require.Equal(t, session.OutcomeSuperseded, out.Kind)
	require.True(t, errors.Is(out.Err, session.ErrClosed))
	require.False(t, called)
}
