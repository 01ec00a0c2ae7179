package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

func newTestScan(t *testing.T) *Scan {
	t.Helper()
	s, err := New(shared.ID{}, shared.NewID(), provider.IdentifierEmail, "alice@example.com",
		[]provider.ID{"breachdirectory", "socialscan"}, provider.TierPro)
	require.NoError(t, err)
	return s
}

func TestNewScan(t *testing.T) {
	s := newTestScan(t)
	assert.False(t, s.ID.IsZero())
	assert.Equal(t, StatusPending, s.Status)
	assert.Len(t, s.RequestedProviders, 2)
	assert.Equal(t, ScheduleNone, s.ScheduleType)
}

func TestNewScanCallerSuppliedID(t *testing.T) {
	id := shared.NewID()
	s, err := New(id, shared.NewID(), provider.IdentifierUsername, "alice",
		[]provider.ID{"socialscan"}, provider.TierFree)
	require.NoError(t, err)
	assert.Equal(t, id, s.ID)
}

func TestNewScanValidation(t *testing.T) {
	ws := shared.NewID()
	providers := []provider.ID{"p1"}

	_, err := New(shared.ID{}, shared.ID{}, provider.IdentifierEmail, "a@b.c", providers, provider.TierFree)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New(shared.ID{}, ws, provider.IdentifierType("passport"), "a@b.c", providers, provider.TierFree)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New(shared.ID{}, ws, provider.IdentifierEmail, "", providers, provider.TierFree)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New(shared.ID{}, ws, provider.IdentifierEmail, "a@b.c", nil, provider.TierFree)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New(shared.ID{}, ws, provider.IdentifierEmail, "a@b.c", providers, provider.Tier("gold"))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestScanLifecycle(t *testing.T) {
	t.Run("completes with findings", func(t *testing.T) {
		s := newTestScan(t)
		require.NoError(t, s.Start())
		assert.Equal(t, StatusRunning, s.Status)
		require.NoError(t, s.Complete(3))
		assert.Equal(t, StatusCompleted, s.Status)
		assert.Equal(t, 3, s.FindingsCount)
		assert.NotNil(t, s.CompletedAt)
	})

	t.Run("completes empty with zero findings", func(t *testing.T) {
		s := newTestScan(t)
		require.NoError(t, s.Start())
		require.NoError(t, s.Complete(0))
		assert.Equal(t, StatusCompletedEmpty, s.Status)
	})

	t.Run("start requires pending", func(t *testing.T) {
		s := newTestScan(t)
		require.NoError(t, s.Start())
		assert.ErrorIs(t, s.Start(), shared.ErrConflict)
	})

	t.Run("terminal states are final", func(t *testing.T) {
		s := newTestScan(t)
		require.NoError(t, s.Start())
		require.NoError(t, s.Fail("finding store unreachable"))
		assert.Equal(t, StatusFailed, s.Status)
		assert.ErrorIs(t, s.Complete(1), shared.ErrConflict)
		assert.ErrorIs(t, s.Cancel(), shared.ErrConflict)
	})

	t.Run("cancel from pending", func(t *testing.T) {
		s := newTestScan(t)
		require.NoError(t, s.Cancel())
		assert.Equal(t, StatusCancelled, s.Status)
	})
}

func TestDeriveStatus(t *testing.T) {
	s := newTestScan(t)

	assert.Equal(t, StatusPending, DeriveStatus(s, 0))
	assert.Equal(t, StatusRunning, DeriveStatus(s, 1))

	require.NoError(t, s.Start())
	require.NoError(t, s.Complete(2))
	assert.Equal(t, StatusCompleted, DeriveStatus(s, 2))
}

func TestSetSchedule(t *testing.T) {
	s := newTestScan(t)

	require.NoError(t, s.SetSchedule(ScheduleDaily, ""))
	assert.True(t, s.IsMonitored())
	require.NotNil(t, s.NextRunAt)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), *s.NextRunAt, time.Minute)

	require.NoError(t, s.SetSchedule(ScheduleCrontab, "0 6 * * 1"))
	assert.NotNil(t, s.NextRunAt)

	assert.ErrorIs(t, s.SetSchedule(ScheduleCrontab, "not a cron"), shared.ErrValidation)
	assert.ErrorIs(t, s.SetSchedule(ScheduleType("hourly"), ""), shared.ErrValidation)

	require.NoError(t, s.SetSchedule(ScheduleNone, ""))
	assert.False(t, s.IsMonitored())
	assert.Nil(t, s.NextRunAt)
}

func TestIsDue(t *testing.T) {
	s := newTestScan(t)
	require.NoError(t, s.SetSchedule(ScheduleDaily, ""))

	assert.False(t, s.IsDue(time.Now()))
	assert.True(t, s.IsDue(time.Now().Add(25*time.Hour)))
}

func TestRerun(t *testing.T) {
	s := newTestScan(t)
	require.NoError(t, s.SetSchedule(ScheduleDaily, ""))

	r := s.Rerun()
	assert.NotEqual(t, s.ID, r.ID)
	assert.Equal(t, s.WorkspaceID, r.WorkspaceID)
	assert.Equal(t, s.IdentifierValue, r.IdentifierValue)
	assert.Equal(t, s.RequestedProviders, r.RequestedProviders)
	assert.Equal(t, StatusPending, r.Status)
	assert.False(t, r.IsMonitored())
}
