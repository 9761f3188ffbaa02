package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelseye/devicegateway/internal/protocol/gt06"
	"github.com/wheelseye/devicegateway/pkg/session"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("PutGetDelete", func(t *testing.T) {
		s := New()
		ds := session.NewDeviceSession("123456789012345", "conn-1", "10.0.0.1:1", gt06.VariantStandard)

		require.NoError(t, s.PutSession(ctx, ds, time.Minute))

		got, err := s.GetSession(ctx, ds.ID)
		require.NoError(t, err)
		assert.Equal(t, ds.IMEI, got.IMEI)

		require.NoError(t, s.DeleteSession(ctx, ds.ID))
		_, err = s.GetSession(ctx, ds.ID)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		s := New()
		ds := session.NewDeviceSession("123456789012345", "conn-1", "10.0.0.1:1", gt06.VariantStandard)
		require.NoError(t, s.PutSession(ctx, ds, time.Minute))

		got, err := s.GetSession(ctx, ds.ID)
		require.NoError(t, err)
		got.IMEI = "mutated"

		again, err := s.GetSession(ctx, ds.ID)
		require.NoError(t, err)
		assert.Equal(t, "123456789012345", again.IMEI)
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		s := New()
		base := time.Now()
		s.now = func() time.Time { return base }

		ds := session.NewDeviceSession("123456789012345", "conn-1", "10.0.0.1:1", gt06.VariantStandard)
		require.NoError(t, s.PutSession(ctx, ds, time.Minute))
		require.NoError(t, s.PutIMEIIndex(ctx, ds.IMEI, ds.ID, time.Minute))

		s.now = func() time.Time { return base.Add(61 * time.Second) }

		_, err := s.GetSession(ctx, ds.ID)
		assert.ErrorIs(t, err, session.ErrNotFound)
		_, err = s.GetIMEIIndex(ctx, ds.IMEI)
		assert.ErrorIs(t, err, session.ErrNotFound)

		list, err := s.ListSessions(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("IMEIIndex", func(t *testing.T) {
		s := New()
		require.NoError(t, s.PutIMEIIndex(ctx, "123456789012345", "sess-1", time.Minute))

		id, err := s.GetIMEIIndex(ctx, "123456789012345")
		require.NoError(t, err)
		assert.Equal(t, "sess-1", id)

		require.NoError(t, s.DeleteIMEIIndex(ctx, "123456789012345"))
		_, err = s.GetIMEIIndex(ctx, "123456789012345")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("ListSessions", func(t *testing.T) {
		s := New()
		for _, imei := range []string{"111111111111111", "222222222222222"} {
			ds := session.NewDeviceSession(imei, "conn", "10.0.0.1:1", gt06.VariantStandard)
			require.NoError(t, s.PutSession(ctx, ds, time.Minute))
		}

		list, err := s.ListSessions(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}
