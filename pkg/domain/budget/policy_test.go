package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceprint/api/pkg/domain/shared"
)

func TestNewPolicyDefaults(t *testing.T) {
	p, err := NewPolicy(shared.NewID(), "breachdirectory", 100, 5000)
	require.NoError(t, err)

	assert.Equal(t, DefaultWarnThresholdPct, p.WarnThresholdPct)
	assert.Equal(t, DefaultCriticalThresholdPct, p.CriticalThresholdPct)
	assert.False(t, p.BlockOnQuotaExceeded)
	assert.False(t, p.BlockOnBudgetExceeded)
	assert.True(t, p.HasQuota())
	assert.True(t, p.HasBudget())
}

func TestNewPolicyValidation(t *testing.T) {
	ws := shared.NewID()

	_, err := NewPolicy(shared.ID{}, "p", 1, 1)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewPolicy(ws, "", 1, 1)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewPolicy(ws, "p", -1, 1)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewPolicy(ws, "p", 1, -1)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetThresholds(t *testing.T) {
	p, err := NewPolicy(shared.NewID(), "p", 10, 1000)
	require.NoError(t, err)

	require.NoError(t, p.SetThresholds(50, 90))
	assert.Equal(t, 50, p.WarnThresholdPct)
	assert.Equal(t, 90, p.CriticalThresholdPct)

	assert.ErrorIs(t, p.SetThresholds(0, 90), shared.ErrValidation)
	assert.ErrorIs(t, p.SetThresholds(50, 101), shared.ErrValidation)
	assert.ErrorIs(t, p.SetThresholds(95, 80), shared.ErrValidation)
}

func TestUnenforcedCeilings(t *testing.T) {
	p, err := NewPolicy(shared.NewID(), "p", 0, 0)
	require.NoError(t, err)
	assert.False(t, p.HasQuota())
	assert.False(t, p.HasBudget())
}

func TestPeriodKeys(t *testing.T) {
	at := time.Date(2026, 9, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-09-01", DayKey(at))
	assert.Equal(t, "2026-09", MonthKey(at))
}

func TestNewAlert(t *testing.T) {
	a, err := NewAlert(shared.NewID(), "breachdirectory", AlertQuotaWarn, 80, 8, 10, "daily quota at 80%")
	require.NoError(t, err)
	assert.Equal(t, AlertQuotaWarn, a.AlertType)
	assert.EqualValues(t, 8, a.CurrentUsage)

	_, err = NewAlert(shared.NewID(), "p", AlertType("spend_panic"), 80, 1, 2, "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
