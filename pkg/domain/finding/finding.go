// Package finding defines the canonical normalized record surfaced by a
// provider about a scanned identifier, and the deterministic key used to
// collapse repeated findings across scans.
package finding

import (
	"context"
	"time"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

// Kind classifies a finding, e.g. "breach.hit" or "social.profile".
type Kind string

// Known finding kinds.
const (
	KindBreachHit     Kind = "breach.hit"
	KindSocialProfile Kind = "social.profile"
	KindPhonePresence Kind = "phone.presence"
	KindDarkwebMention Kind = "darkweb.mention"
	KindDomainRecord  Kind = "domain.record"
	KindIPReputation  Kind = "ip.reputation"
	KindImageMatch    Kind = "image.match"
	KindGeneric       Kind = "generic.record"
)

// Severity ranks how serious a finding is.
type Severity string

// Severity levels, lowest to highest.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether the severity is known.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// EvidenceItem is one key/value pair of supporting evidence. Keys are not
// required to be unique; insertion order is display order.
type EvidenceItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Evidence is an ordered evidence list.
type Evidence []EvidenceItem

// Add appends a non-empty evidence value. Empty values are dropped so that
// omitted provider fields never surface as blank entries.
func (e Evidence) Add(key, value string) Evidence {
	if value == "" {
		return e
	}
	return append(e, EvidenceItem{Key: key, Value: value})
}

// Finding is one normalized fact about the scanned identifier.
// Findings are append-only: a re-scan creates new rows sharing the same
// finding key, and display layers collapse duplicates by key.
type Finding struct {
	ID          shared.ID      `json:"id"`
	ScanID      shared.ID      `json:"scan_id"`
	WorkspaceID shared.ID      `json:"workspace_id"`
	Provider    provider.ID    `json:"provider"`
	Kind        Kind           `json:"kind"`
	Severity    Severity       `json:"severity"`
	Confidence  float64        `json:"confidence"`
	Title       string         `json:"title"`
	Evidence    Evidence       `json:"evidence"`
	ObservedAt  time.Time      `json:"observed_at"`
	Meta        map[string]any `json:"meta"`
	CreatedAt   time.Time      `json:"created_at"`
}

// New creates a finding. The dedup key is derived from (provider, kind, seed)
// and stored under Meta["finding_key"].
func New(scanID, workspaceID shared.ID, providerID provider.ID, kind Kind, severity Severity, confidence float64, seed string) (*Finding, error) {
	if scanID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "scan id is required", shared.ErrValidation)
	}
	if workspaceID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "workspace id is required", shared.ErrValidation)
	}
	if providerID == "" {
		return nil, shared.NewDomainError("VALIDATION", "provider is required", shared.ErrValidation)
	}
	if kind == "" {
		return nil, shared.NewDomainError("VALIDATION", "kind is required", shared.ErrValidation)
	}
	if !severity.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid severity", shared.ErrValidation)
	}
	if confidence < 0 || confidence > 1 {
		return nil, shared.NewDomainError("VALIDATION", "confidence must be within [0,1]", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Finding{
		ID:          shared.NewID(),
		ScanID:      scanID,
		WorkspaceID: workspaceID,
		Provider:    providerID,
		Kind:        kind,
		Severity:    severity,
		Confidence:  confidence,
		ObservedAt:  now,
		Meta: map[string]any{
			"finding_key": Key(providerID, kind, seed),
		},
		CreatedAt: now,
	}, nil
}

// FindingKey returns the dedup key stored in Meta.
func (f *Finding) FindingKey() string {
	if k, ok := f.Meta["finding_key"].(string); ok {
		return k
	}
	return ""
}

// SetTitle sets the display title.
func (f *Finding) SetTitle(title string) { f.Title = title }

// SetEvidence replaces the evidence list.
func (f *Finding) SetEvidence(e Evidence) { f.Evidence = e }

// SetMeta adds one free-form metadata entry.
func (f *Finding) SetMeta(key string, value any) {
	if f.Meta == nil {
		f.Meta = make(map[string]any)
	}
	f.Meta[key] = value
}

// Repository persists findings. Append-only: there is no update path, and
// duplicate finding keys across scans are expected.
type Repository interface {
	Create(ctx context.Context, f *Finding) error
	ListByScan(ctx context.Context, scanID shared.ID) ([]*Finding, error)
	CountByScan(ctx context.Context, scanID shared.ID) (int, error)
}
