package finding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceprint/api/pkg/domain/shared"
)

func TestNewFinding(t *testing.T) {
	scanID := shared.NewID()
	wsID := shared.NewID()

	f, err := New(scanID, wsID, "breachdirectory", KindBreachHit, SeverityHigh, 0.9, "Acme2020")
	require.NoError(t, err)

	assert.False(t, f.ID.IsZero())
	assert.Equal(t, scanID, f.ScanID)
	assert.Equal(t, KindBreachHit, f.Kind)
	assert.Equal(t, "breachdirectory:breach.hit:acme2020", f.FindingKey())
	assert.False(t, f.ObservedAt.IsZero())
}

func TestNewFindingValidation(t *testing.T) {
	scanID := shared.NewID()
	wsID := shared.NewID()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"missing scan id", func() error {
			_, err := New(shared.ID{}, wsID, "p", KindBreachHit, SeverityHigh, 0.5, "s")
			return err
		}},
		{"missing workspace id", func() error {
			_, err := New(scanID, shared.ID{}, "p", KindBreachHit, SeverityHigh, 0.5, "s")
			return err
		}},
		{"missing provider", func() error {
			_, err := New(scanID, wsID, "", KindBreachHit, SeverityHigh, 0.5, "s")
			return err
		}},
		{"invalid severity", func() error {
			_, err := New(scanID, wsID, "p", KindBreachHit, Severity("urgent"), 0.5, "s")
			return err
		}},
		{"confidence above 1", func() error {
			_, err := New(scanID, wsID, "p", KindBreachHit, SeverityHigh, 1.2, "s")
			return err
		}},
		{"confidence below 0", func() error {
			_, err := New(scanID, wsID, "p", KindBreachHit, SeverityHigh, -0.1, "s")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestEvidenceOrderingAndOmission(t *testing.T) {
	var e Evidence
	e = e.Add("email", "alice@example.com")
	e = e.Add("source", "")
	e = e.Add("platform", "github")
	e = e.Add("platform", "gitlab")

	require.Len(t, e, 3)
	assert.Equal(t, "email", e[0].Key)
	assert.Equal(t, "platform", e[1].Key)
	assert.Equal(t, "github", e[1].Value)
	assert.Equal(t, "gitlab", e[2].Value)
}

func TestFindingKeyStableAcrossInstances(t *testing.T) {
	scanA := shared.NewID()
	scanB := shared.NewID()
	wsID := shared.NewID()

	// Same fact observed in two different scans shares the key but not the row.
	f1, err := New(scanA, wsID, "socialscan", KindSocialProfile, SeverityMedium, 0.75, "github alice")
	require.NoError(t, err)
	f2, err := New(scanB, wsID, "socialscan", KindSocialProfile, SeverityMedium, 0.75, "github alice")
	require.NoError(t, err)

	assert.Equal(t, f1.FindingKey(), f2.FindingKey())
	assert.NotEqual(t, f1.ID, f2.ID)
}
