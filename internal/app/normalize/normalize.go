// Package normalize converts raw provider records into canonical findings.
// Every function here is pure: classification, severity, confidence, and
// evidence construction depend only on the record, the provider, and the
// scan context, so each provider shape is unit-testable in isolation.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/traceprint/api/pkg/domain/finding"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

// Context carries the scan fields a finding is stamped with.
type Context struct {
	ScanID          shared.ID
	WorkspaceID     shared.ID
	IdentifierType  provider.IdentifierType
	IdentifierValue string
}

// Normalize maps one raw provider record onto the canonical finding shape.
// Classification is rule-based on the record's field names; unrecognized
// records fall back to a generic kind rather than being dropped.
func Normalize(providerID provider.ID, raw map[string]any, sc Context) (*finding.Finding, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty provider record")
	}

	rule := classify(raw)
	sev, conf := rule.score(raw)

	f, err := finding.New(sc.ScanID, sc.WorkspaceID, providerID, rule.kind, sev, conf, rule.seed(raw, sc))
	if err != nil {
		return nil, fmt.Errorf("build finding: %w", err)
	}

	f.SetTitle(rule.title(raw, sc))
	f.SetEvidence(rule.evidence(raw, sc))
	f.SetMeta("identifier_type", string(sc.IdentifierType))
	f.SetMeta("raw_fields", fieldNames(raw))
	return f, nil
}

func fieldNames(raw map[string]any) []string {
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// str returns the first non-empty string value among the given keys.
func str(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

// boolean reports whether any of the keys holds a true value. Providers are
// inconsistent about encoding booleans, so "true"/"1"/"yes" strings count.
func boolean(raw map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case bool:
			if v {
				return true
			}
		case string:
			s := strings.ToLower(v)
			if s == "true" || s == "1" || s == "yes" {
				return true
			}
		case float64:
			if v != 0 {
				return true
			}
		}
	}
	return false
}

func number(raw map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
