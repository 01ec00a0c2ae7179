// Package provider defines the external data providers queried during a scan,
// the subscription tiers that gate them, and the per-provider outcome record.
package provider

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ID identifies a provider (e.g. "breachdirectory", "socialscan").
type ID string

// String returns the provider ID as a string.
func (id ID) String() string { return string(id) }

// IdentifierType is the kind of identifier a scan targets.
type IdentifierType string

// Supported identifier types.
const (
	IdentifierUsername IdentifierType = "username"
	IdentifierEmail    IdentifierType = "email"
	IdentifierPhone    IdentifierType = "phone"
	IdentifierDomain   IdentifierType = "domain"
	IdentifierIP       IdentifierType = "ip"
	IdentifierImage    IdentifierType = "image"
	IdentifierName     IdentifierType = "name"
)

// IsValid reports whether the identifier type is known.
func (t IdentifierType) IsValid() bool {
	switch t {
	case IdentifierUsername, IdentifierEmail, IdentifierPhone,
		IdentifierDomain, IdentifierIP, IdentifierImage, IdentifierName:
		return true
	default:
		return false
	}
}

// Tier is a subscription level gating provider access.
type Tier string

// Subscription tiers, lowest to highest.
const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

var tierRank = map[Tier]int{
	TierFree:       0,
	TierStarter:    1,
	TierPro:        2,
	TierEnterprise: 3,
}

// IsValid reports whether the tier is known.
func (t Tier) IsValid() bool {
	_, ok := tierRank[t]
	return ok
}

// Entitles reports whether a user on this tier may call a provider
// requiring the given tier.
func (t Tier) Entitles(required Tier) bool {
	return tierRank[t] >= tierRank[required]
}

// Spec describes one configured provider: what it can scan, what it costs,
// which tier unlocks it, and how long a call may take.
type Spec struct {
	ID            ID               `yaml:"id"`
	Name          string           `yaml:"name"`
	RequiredTier  Tier             `yaml:"required_tier"`
	CostPence     int64            `yaml:"cost_pence"`
	Timeout       time.Duration    `yaml:"timeout"`
	Identifiers   []IdentifierType `yaml:"identifiers"`
	CredentialKey string           `yaml:"credential_key"`
}

// UnmarshalYAML decodes a spec, accepting timeouts in Go duration syntax
// ("20s", "1m30s").
func (s *Spec) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ID            ID               `yaml:"id"`
		Name          string           `yaml:"name"`
		RequiredTier  Tier             `yaml:"required_tier"`
		CostPence     int64            `yaml:"cost_pence"`
		Timeout       string           `yaml:"timeout"`
		Identifiers   []IdentifierType `yaml:"identifiers"`
		CredentialKey string           `yaml:"credential_key"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	var timeout time.Duration
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("provider %q: invalid timeout %q: %w", raw.ID, raw.Timeout, err)
		}
		timeout = d
	}

	*s = Spec{
		ID:            raw.ID,
		Name:          raw.Name,
		RequiredTier:  raw.RequiredTier,
		CostPence:     raw.CostPence,
		Timeout:       timeout,
		Identifiers:   raw.Identifiers,
		CredentialKey: raw.CredentialKey,
	}
	return nil
}

// Supports reports whether the provider handles the given identifier type.
func (s Spec) Supports(t IdentifierType) bool {
	for _, it := range s.Identifiers {
		if it == t {
			return true
		}
	}
	return false
}

// Catalog is the set of known providers.
type Catalog struct {
	specs map[ID]Spec
	order []ID
}

// NewCatalog builds a catalog from specs, preserving order.
func NewCatalog(specs []Spec) (*Catalog, error) {
	c := &Catalog{specs: make(map[ID]Spec, len(specs))}
	for _, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("provider spec missing id")
		}
		if _, dup := c.specs[s.ID]; dup {
			return nil, fmt.Errorf("duplicate provider spec %q", s.ID)
		}
		if !s.RequiredTier.IsValid() {
			return nil, fmt.Errorf("provider %q: invalid required_tier %q", s.ID, s.RequiredTier)
		}
		if s.Timeout <= 0 {
			s.Timeout = DefaultCallTimeout
		}
		c.specs[s.ID] = s
		c.order = append(c.order, s.ID)
	}
	return c, nil
}

// DefaultCallTimeout bounds a provider call when the catalog entry gives none.
const DefaultCallTimeout = 20 * time.Second

// LoadCatalog reads a provider catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var doc struct {
		Providers []Spec `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(doc.Providers)
}

// Get returns the spec for a provider ID.
func (c *Catalog) Get(id ID) (Spec, bool) {
	s, ok := c.specs[id]
	return s, ok
}

// IDs returns all provider IDs in catalog order.
func (c *Catalog) IDs() []ID {
	out := make([]ID, len(c.order))
	copy(out, c.order)
	return out
}

// ForIdentifier returns the providers that can scan the given identifier
// type, in catalog order.
func (c *Catalog) ForIdentifier(t IdentifierType) []Spec {
	var out []Spec
	for _, id := range c.order {
		if s := c.specs[id]; s.Supports(t) {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of providers in the catalog.
func (c *Catalog) Len() int { return len(c.order) }
