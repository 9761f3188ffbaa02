package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelseye/devicegateway/internal/protocol/gt06"
	"github.com/wheelseye/devicegateway/pkg/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore(t *testing.T) {
	ctx := context.Background()

	t.Run("SessionRoundTrip", func(t *testing.T) {
		s := newTestStore(t)
		ds := session.NewDeviceSession("123456789012345", "conn-1", "10.0.0.1:1", gt06.VariantV5)
		ds.HasReceivedLocation = true
		ds.SetAttribute("firmware", "3.2.1")

		require.NoError(t, s.PutSession(ctx, ds, time.Minute))

		got, err := s.GetSession(ctx, ds.ID)
		require.NoError(t, err)
		assert.Equal(t, ds.IMEI, got.IMEI)
		assert.Equal(t, gt06.VariantV5, got.Variant)
		assert.True(t, got.HasReceivedLocation)
		assert.Equal(t, "3.2.1", got.Attributes["firmware"])
	})

	t.Run("MissingSession", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.GetSession(ctx, "nope")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := newTestStore(t)
		assert.NoError(t, s.DeleteSession(ctx, "nope"))
		assert.NoError(t, s.DeleteIMEIIndex(ctx, "nope"))
	})

	t.Run("IMEIIndexRoundTrip", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.PutIMEIIndex(ctx, "123456789012345", "sess-1", time.Minute))

		id, err := s.GetIMEIIndex(ctx, "123456789012345")
		require.NoError(t, err)
		assert.Equal(t, "sess-1", id)

		require.NoError(t, s.DeleteIMEIIndex(ctx, "123456789012345"))
		_, err = s.GetIMEIIndex(ctx, "123456789012345")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("ListOnlySessionRecords", func(t *testing.T) {
		s := newTestStore(t)
		for _, imei := range []string{"111111111111111", "222222222222222"} {
			ds := session.NewDeviceSession(imei, "conn", "10.0.0.1:1", gt06.VariantStandard)
			require.NoError(t, s.PutSession(ctx, ds, time.Minute))
			require.NoError(t, s.PutIMEIIndex(ctx, imei, ds.ID, time.Minute))
		}

		list, err := s.ListSessions(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}
