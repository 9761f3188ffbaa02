package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelseye/devicegateway/internal/protocol/gt06"
	"github.com/wheelseye/devicegateway/pkg/session"
	"github.com/wheelseye/devicegateway/pkg/session/store/memory"
)

const testIMEI = "123456789012345"

func newRegistry(t *testing.T, cfg session.RegistryConfig) *session.Registry {
	t.Helper()
	return session.NewRegistry(memory.New(), cfg)
}

func TestCreateOrRebind(t *testing.T) {
	ctx := context.Background()

	t.Run("FreshLoginCreatesSession", func(t *testing.T) {
		r := newRegistry(t, session.RegistryConfig{})

		s, rebound, err := r.CreateOrRebind(ctx, testIMEI, "conn-1", "10.0.0.1:40100", gt06.VariantStandard)
		require.NoError(t, err)

		assert.False(t, rebound)
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, testIMEI, s.IMEI)
		assert.Equal(t, "conn-1", s.ConnectionID)
		assert.True(t, s.Authenticated)
		assert.Equal(t, gt06.VariantStandard, s.Variant)
	})

	t.Run("ReconnectRebindsExistingSession", func(t *testing.T) {
		r := newRegistry(t, session.RegistryConfig{})

		first, _, err := r.CreateOrRebind(ctx, testIMEI, "conn-1", "10.0.0.1:40100", gt06.VariantV5)
		require.NoError(t, err)
		first.HasReceivedLocation = true
		require.NoError(t, r.Save(ctx, first))

		second, rebound, err := r.CreateOrRebind(ctx, testIMEI, "conn-2", "10.0.0.2:40200", gt06.VariantV5)
		require.NoError(t, err)

		assert.True(t, rebound)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "conn-2", second.ConnectionID)
		assert.Equal(t, "10.0.0.2:40200", second.RemoteAddress)
		assert.True(t, second.HasReceivedLocation, "accumulated flags survive rebind")

		// The old connection no longer resolves.
		_, err = r.GetByConnection(ctx, "conn-1")
		assert.ErrorIs(t, err, session.ErrNotFound)

		got, err := r.GetByConnection(ctx, "conn-2")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("VariantImmutableOnceSet", func(t *testing.T) {
		r := newRegistry(t, session.RegistryConfig{})

		_, _, err := r.CreateOrRebind(ctx, testIMEI, "conn-1", "10.0.0.1:1", gt06.VariantSK05)
		require.NoError(t, err)

		s, _, err := r.CreateOrRebind(ctx, testIMEI, "conn-2", "10.0.0.1:2", gt06.VariantStandard)
		require.NoError(t, err)
		assert.Equal(t, gt06.VariantSK05, s.Variant)
	})

	t.Run("DifferentIMEIsGetDifferentSessions", func(t *testing.T) {
		r := newRegistry(t, session.RegistryConfig{})

		a, _, err := r.CreateOrRebind(ctx, "111111111111111", "conn-a", "10.0.0.1:1", gt06.VariantStandard)
		require.NoError(t, err)
		b, _, err := r.CreateOrRebind(ctx, "222222222222222", "conn-b", "10.0.0.1:2", gt06.VariantStandard)
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestReleaseConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("SessionSurvivesForRebind", func(t *testing.T) {
		r := newRegistry(t, session.RegistryConfig{})

		created, _, err := r.CreateOrRebind(ctx, testIMEI, "conn-1", "10.0.0.1:1", gt06.VariantStandard)
		require.NoError(t, err)

		released, err := r.ReleaseConnection(ctx, "conn-1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, released.ID)

		_, err = r.GetByConnection(ctx, "conn-1")
		assert.ErrorIs(t, err, session.ErrNotFound)

		// Device identity still resolves, unbound.
		s, err := r.GetByIMEI(ctx, testIMEI)
		require.NoError(t, err)
		assert.Equal(t, created.ID, s.ID)
		assert.False(t, s.Bound())
	})

	t.Run("StaleReleaseDoesNotUnbindNewerConnection", func(t *testing.T) {
		r := newRegistry(t, session.RegistryConfig{})

		_, _, err := r.CreateOrRebind(ctx, testIMEI, "conn-1", "10.0.0.1:1", gt06.VariantStandard)
		require.NoError(t, err)
		_, _, err = r.CreateOrRebind(ctx, testIMEI, "conn-2", "10.0.0.1:2", gt06.VariantStandard)
		require.NoError(t, err)

		// conn-1's deferred cleanup fires after the rebind.
		_, err = r.ReleaseConnection(ctx, "conn-1")
		assert.ErrorIs(t, err, session.ErrNotFound)

		s, err := r.GetByIMEI(ctx, testIMEI)
		require.NoError(t, err)
		assert.Equal(t, "conn-2", s.ConnectionID)
	})

	t.Run("UnknownConnection", func(t *testing.T) {
		r := newRegistry(t, session.RegistryConfig{})
		_, err := r.ReleaseConnection(ctx, "conn-missing")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
}

func TestSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyRegistry", func(t *testing.T) {
		r := newRegistry(t, session.RegistryConfig{})
		n, err := r.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("EvictsOnlyStrictlyPastTimeout", func(t *testing.T) {
		store := memory.New()
		r := session.NewRegistry(store, session.RegistryConfig{
			TTL:         time.Hour,
			IdleTimeout: 600 * time.Second,
		})

		idle, _, err := r.CreateOrRebind(ctx, "111111111111111", "conn-idle", "10.0.0.1:1", gt06.VariantStandard)
		require.NoError(t, err)
		fresh, _, err := r.CreateOrRebind(ctx, "222222222222222", "conn-fresh", "10.0.0.1:2", gt06.VariantStandard)
		require.NoError(t, err)

		idle.LastActivityAt = time.Now().UTC().Add(-601 * time.Second)
		require.NoError(t, store.PutSession(ctx, idle, time.Hour))
		// Well inside the timeout; the exact boundary cannot be pinned
		// against a wall clock that advances before Sweep runs.
		fresh.LastActivityAt = time.Now().UTC().Add(-300 * time.Second)
		require.NoError(t, store.PutSession(ctx, fresh, time.Hour))

		var closed []string
		r.SetConnectionCloser(func(connectionID string) {
			closed = append(closed, connectionID)
		})
		var evicted []string
		r.SetEvictionObserver(func(s *session.DeviceSession) {
			evicted = append(evicted, s.IMEI)
		})

		n, err := r.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"conn-idle"}, closed)
		assert.Equal(t, []string{"111111111111111"}, evicted)

		_, err = r.GetByIMEI(ctx, "111111111111111")
		assert.ErrorIs(t, err, session.ErrNotFound)

		s, err := r.GetByIMEI(ctx, "222222222222222")
		require.NoError(t, err)
		assert.Equal(t, fresh.ID, s.ID)
	})
}

func TestFindIdle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	r := session.NewRegistry(store, session.RegistryConfig{TTL: time.Hour})

	s, _, err := r.CreateOrRebind(ctx, testIMEI, "conn-1", "10.0.0.1:1", gt06.VariantStandard)
	require.NoError(t, err)

	idle, err := r.FindIdle(ctx, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, idle)

	s.LastActivityAt = time.Now().UTC().Add(-2 * time.Minute)
	require.NoError(t, store.PutSession(ctx, s, time.Hour))

	idle, err = r.FindIdle(ctx, time.Minute)
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, s.ID, idle[0].ID)
}
