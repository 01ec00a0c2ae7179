package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceprint/api/pkg/domain/finding"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

func testContext() Context {
	return Context{
		ScanID:          shared.NewID(),
		WorkspaceID:     shared.NewID(),
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
	}
}

func TestNormalizeBreachHit(t *testing.T) {
	raw := map[string]any{
		"breach_name":      "Acme2020",
		"date_compromised": "2020-01-01",
	}

	f, err := Normalize("breachdirectory", raw, testContext())
	require.NoError(t, err)

	assert.Equal(t, finding.KindBreachHit, f.Kind)
	assert.Equal(t, finding.SeverityHigh, f.Severity)
	assert.InDelta(t, 0.9, f.Confidence, 0.001)
	assert.Equal(t, "breachdirectory:breach.hit:acme2020", f.FindingKey())

	// Primary identifier first, then breach attributes; empty fields omitted.
	require.True(t, len(f.Evidence) >= 3)
	assert.Equal(t, "identifier", f.Evidence[0].Key)
	assert.Equal(t, "breach", f.Evidence[1].Key)
	assert.Equal(t, "Acme2020", f.Evidence[1].Value)
	assert.Equal(t, "compromised", f.Evidence[2].Key)
	for _, item := range f.Evidence {
		assert.NotEmpty(t, item.Value)
	}
}

func TestNormalizeSensitiveBreachEscalates(t *testing.T) {
	raw := map[string]any{
		"breach_name":  "AdultSite2019",
		"is_sensitive": true,
	}
	f, err := Normalize("breachdirectory", raw, testContext())
	require.NoError(t, err)
	assert.Equal(t, finding.SeverityCritical, f.Severity)
}

func TestNormalizeSocialProfile(t *testing.T) {
	t.Run("unverified", func(t *testing.T) {
		raw := map[string]any{
			"platform": "github",
			"username": "alice",
			"link":     "https://github.com/alice",
		}
		f, err := Normalize("socialscan", raw, testContext())
		require.NoError(t, err)

		assert.Equal(t, finding.KindSocialProfile, f.Kind)
		assert.Equal(t, finding.SeverityMedium, f.Severity)
		assert.InDelta(t, 0.75, f.Confidence, 0.001)
	})

	t.Run("verified boosts confidence", func(t *testing.T) {
		raw := map[string]any{
			"platform":    "github",
			"username":    "alice",
			"is_verified": true,
		}
		f, err := Normalize("socialscan", raw, testContext())
		require.NoError(t, err)
		assert.InDelta(t, 0.95, f.Confidence, 0.001)
	})

	t.Run("evidence order: username, platform, url", func(t *testing.T) {
		raw := map[string]any{
			"platform": "github",
			"username": "alice",
			"link":     "https://github.com/alice",
		}
		f, err := Normalize("socialscan", raw, testContext())
		require.NoError(t, err)

		require.Len(t, f.Evidence, 3)
		assert.Equal(t, "username", f.Evidence[0].Key)
		assert.Equal(t, "platform", f.Evidence[1].Key)
		assert.Equal(t, "url", f.Evidence[2].Key)
	})

	t.Run("string-encoded verified flag", func(t *testing.T) {
		raw := map[string]any{
			"platform": "x",
			"username": "alice",
			"verified": "true",
		}
		f, err := Normalize("socialscan", raw, testContext())
		require.NoError(t, err)
		assert.InDelta(t, 0.95, f.Confidence, 0.001)
	})
}

func TestNormalizeDarkwebMention(t *testing.T) {
	raw := map[string]any{
		"market":       "alphabay",
		"mention_text": "fullz pack including alice@example.com",
	}
	f, err := Normalize("darkfeed", raw, testContext())
	require.NoError(t, err)

	assert.Equal(t, finding.KindDarkwebMention, f.Kind)
	assert.Equal(t, finding.SeverityCritical, f.Severity)
}

func TestNormalizePhone(t *testing.T) {
	raw := map[string]any{
		"phone_number": "+447700900123",
		"carrier":      "Vodafone",
		"line_type":    "mobile",
	}
	f, err := Normalize("phoneintel", raw, testContext())
	require.NoError(t, err)
	assert.Equal(t, finding.KindPhonePresence, f.Kind)
	assert.Equal(t, finding.SeverityLow, f.Severity)
}

func TestNormalizeIPReputationSeverityScaling(t *testing.T) {
	tests := []struct {
		score float64
		want  finding.Severity
	}{
		{95, finding.SeverityCritical},
		{70, finding.SeverityHigh},
		{40, finding.SeverityMedium},
		{10, finding.SeverityLow},
	}
	for _, tt := range tests {
		raw := map[string]any{"ip": "203.0.113.9", "abuse_score": tt.score}
		f, err := Normalize("ipwatch", raw, testContext())
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.Severity, "score %v", tt.score)
	}
}

func TestNormalizeGenericFallback(t *testing.T) {
	raw := map[string]any{
		"something_unknown": "value",
	}
	f, err := Normalize("mystery", raw, testContext())
	require.NoError(t, err)

	assert.Equal(t, finding.KindGeneric, f.Kind)
	assert.Equal(t, finding.SeverityLow, f.Severity)
	assert.InDelta(t, 0.5, f.Confidence, 0.001)
}

func TestNormalizeGenericSeedStable(t *testing.T) {
	raw := map[string]any{"b_field": "two", "a_field": "one"}
	f1, err := Normalize("mystery", raw, testContext())
	require.NoError(t, err)
	f2, err := Normalize("mystery", raw, testContext())
	require.NoError(t, err)
	assert.Equal(t, f1.FindingKey(), f2.FindingKey())
}

func TestNormalizeEmptyRecord(t *testing.T) {
	_, err := Normalize("p", map[string]any{}, testContext())
	assert.Error(t, err)
}

func TestNormalizeIsPure(t *testing.T) {
	raw := map[string]any{"breach_name": "Acme2020"}
	sc := testContext()

	f1, err := Normalize("p", raw, sc)
	require.NoError(t, err)
	f2, err := Normalize("p", raw, sc)
	require.NoError(t, err)

	assert.Equal(t, f1.Kind, f2.Kind)
	assert.Equal(t, f1.Severity, f2.Severity)
	assert.Equal(t, f1.Confidence, f2.Confidence)
	assert.Equal(t, f1.FindingKey(), f2.FindingKey())
	assert.Equal(t, f1.Evidence, f2.Evidence)
	assert.Equal(t, f1.Meta, f2.Meta)
}

func TestNormalizeRawFieldsSorted(t *testing.T) {
	raw := map[string]any{
		"platform":    "github",
		"username":    "alice",
		"link":        "https://github.com/alice",
		"is_verified": true,
		"bio":         "dev",
	}

	f, err := Normalize("socialscan", raw, testContext())
	require.NoError(t, err)

	names, ok := f.Meta["raw_fields"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"bio", "is_verified", "link", "platform", "username"}, names)
}
