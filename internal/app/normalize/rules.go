package normalize

import (
	"fmt"
	"sort"

	"github.com/traceprint/api/pkg/domain/finding"
)

// rule describes how one record shape maps onto the canonical finding.
type rule struct {
	kind     finding.Kind
	score    func(raw map[string]any) (finding.Severity, float64)
	seed     func(raw map[string]any, sc Context) string
	title    func(raw map[string]any, sc Context) string
	evidence func(raw map[string]any, sc Context) finding.Evidence
}

// classify picks the mapping rule for a raw record by inspecting its field
// names. Rules are checked most-specific first; anything unrecognized maps
// to the generic rule.
func classify(raw map[string]any) rule {
	switch {
	case has(raw, "breach_name") || has(raw, "date_compromised") || has(raw, "data_classes"):
		return breachRule
	case has(raw, "platform") && (has(raw, "username") || has(raw, "link") || has(raw, "profile_url")):
		return socialRule
	case has(raw, "market") || has(raw, "forum") || has(raw, "mention_text"):
		return darkwebRule
	case has(raw, "carrier") || has(raw, "line_type"):
		return phoneRule
	case has(raw, "registrar") || has(raw, "whois_server"):
		return domainRule
	case has(raw, "abuse_score") || has(raw, "reputation_score"):
		return ipRule
	case has(raw, "similarity") && (has(raw, "page_url") || has(raw, "image_url")):
		return imageRule
	default:
		return genericRule
	}
}

func has(raw map[string]any, key string) bool {
	v, ok := raw[key]
	if !ok {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return v != nil
}

// Breach database hits. Always high severity: compromised credentials are
// actionable regardless of age.
var breachRule = rule{
	kind: finding.KindBreachHit,
	score: func(raw map[string]any) (finding.Severity, float64) {
		if boolean(raw, "is_sensitive") {
			return finding.SeverityCritical, 0.9
		}
		return finding.SeverityHigh, 0.9
	},
	seed: func(raw map[string]any, sc Context) string {
		return str(raw, "breach_name", "name", "title")
	},
	title: func(raw map[string]any, sc Context) string {
		name := str(raw, "breach_name", "name", "title")
		if name == "" {
			name = "unnamed breach"
		}
		return fmt.Sprintf("Identifier found in breach %q", name)
	},
	evidence: func(raw map[string]any, sc Context) finding.Evidence {
		var e finding.Evidence
		e = e.Add("identifier", sc.IdentifierValue)
		e = e.Add("breach", str(raw, "breach_name", "name", "title"))
		e = e.Add("compromised", str(raw, "date_compromised", "breach_date"))
		e = e.Add("data_classes", str(raw, "data_classes"))
		e = e.Add("source", str(raw, "source", "domain"))
		return e
	},
}

// Social platform profile matches. Confidence is boosted when the provider
// explicitly marks the profile as verified.
var socialRule = rule{
	kind: finding.KindSocialProfile,
	score: func(raw map[string]any) (finding.Severity, float64) {
		if boolean(raw, "is_verified", "verified") {
			return finding.SeverityMedium, 0.95
		}
		return finding.SeverityMedium, 0.75
	},
	seed: func(raw map[string]any, sc Context) string {
		return str(raw, "platform") + " " + str(raw, "username", "handle")
	},
	title: func(raw map[string]any, sc Context) string {
		return fmt.Sprintf("Profile on %s", str(raw, "platform"))
	},
	evidence: func(raw map[string]any, sc Context) finding.Evidence {
		var e finding.Evidence
		e = e.Add("username", str(raw, "username", "handle"))
		e = e.Add("platform", str(raw, "platform"))
		e = e.Add("url", str(raw, "link", "profile_url"))
		e = e.Add("followers", str(raw, "followers"))
		e = e.Add("bio", str(raw, "bio"))
		return e
	},
}

// Dark-web mentions. High default; confidence stays moderate because feed
// attribution is noisy.
var darkwebRule = rule{
	kind: finding.KindDarkwebMention,
	score: func(raw map[string]any) (finding.Severity, float64) {
		if has(raw, "market") {
			return finding.SeverityCritical, 0.7
		}
		return finding.SeverityHigh, 0.7
	},
	seed: func(raw map[string]any, sc Context) string {
		return str(raw, "market", "forum") + " " + str(raw, "mention_text")
	},
	title: func(raw map[string]any, sc Context) string {
		src := str(raw, "market", "forum")
		if src == "" {
			src = "dark web source"
		}
		return fmt.Sprintf("Mention on %s", src)
	},
	evidence: func(raw map[string]any, sc Context) finding.Evidence {
		var e finding.Evidence
		e = e.Add("identifier", sc.IdentifierValue)
		e = e.Add("source", str(raw, "market", "forum"))
		e = e.Add("excerpt", str(raw, "mention_text"))
		e = e.Add("observed", str(raw, "observed_at", "date"))
		return e
	},
}

// Phone intelligence records.
var phoneRule = rule{
	kind: finding.KindPhonePresence,
	score: func(raw map[string]any) (finding.Severity, float64) {
		return finding.SeverityLow, 0.8
	},
	seed: func(raw map[string]any, sc Context) string {
		return str(raw, "phone_number") + " " + str(raw, "carrier")
	},
	title: func(raw map[string]any, sc Context) string {
		return "Phone number intelligence"
	},
	evidence: func(raw map[string]any, sc Context) finding.Evidence {
		var e finding.Evidence
		e = e.Add("number", str(raw, "phone_number"))
		e = e.Add("carrier", str(raw, "carrier"))
		e = e.Add("line_type", str(raw, "line_type"))
		e = e.Add("country", str(raw, "country"))
		return e
	},
}

// WHOIS / domain registration records.
var domainRule = rule{
	kind: finding.KindDomainRecord,
	score: func(raw map[string]any) (finding.Severity, float64) {
		return finding.SeverityLow, 0.85
	},
	seed: func(raw map[string]any, sc Context) string {
		return str(raw, "domain") + " " + str(raw, "registrar")
	},
	title: func(raw map[string]any, sc Context) string {
		return fmt.Sprintf("Domain registration record for %s", str(raw, "domain"))
	},
	evidence: func(raw map[string]any, sc Context) finding.Evidence {
		var e finding.Evidence
		e = e.Add("domain", str(raw, "domain"))
		e = e.Add("registrar", str(raw, "registrar"))
		e = e.Add("created", str(raw, "created_date"))
		e = e.Add("expires", str(raw, "expiry_date"))
		e = e.Add("registrant", str(raw, "registrant"))
		return e
	},
}

// IP reputation. Severity scales with the reported abuse score.
var ipRule = rule{
	kind: finding.KindIPReputation,
	score: func(raw map[string]any) (finding.Severity, float64) {
		score, ok := number(raw, "abuse_score", "reputation_score")
		switch {
		case ok && score >= 90:
			return finding.SeverityCritical, 0.85
		case ok && score >= 60:
			return finding.SeverityHigh, 0.85
		case ok && score >= 30:
			return finding.SeverityMedium, 0.85
		default:
			return finding.SeverityLow, 0.85
		}
	},
	seed: func(raw map[string]any, sc Context) string {
		return str(raw, "ip", "ip_address") + " reputation"
	},
	title: func(raw map[string]any, sc Context) string {
		return fmt.Sprintf("Reputation report for %s", str(raw, "ip", "ip_address"))
	},
	evidence: func(raw map[string]any, sc Context) finding.Evidence {
		var e finding.Evidence
		e = e.Add("ip", str(raw, "ip", "ip_address"))
		e = e.Add("abuse_score", str(raw, "abuse_score", "reputation_score"))
		e = e.Add("country", str(raw, "country"))
		e = e.Add("isp", str(raw, "isp"))
		return e
	},
}

// Reverse-image matches.
var imageRule = rule{
	kind: finding.KindImageMatch,
	score: func(raw map[string]any) (finding.Severity, float64) {
		sim, ok := number(raw, "similarity")
		if ok && sim > 1 {
			sim = sim / 100 // Some providers report percentages.
		}
		if !ok {
			sim = 0.5
		}
		if sim >= 0.9 {
			return finding.SeverityMedium, sim
		}
		return finding.SeverityLow, sim
	},
	seed: func(raw map[string]any, sc Context) string {
		return str(raw, "page_url", "image_url")
	},
	title: func(raw map[string]any, sc Context) string {
		return "Image match found"
	},
	evidence: func(raw map[string]any, sc Context) finding.Evidence {
		var e finding.Evidence
		e = e.Add("page", str(raw, "page_url"))
		e = e.Add("image", str(raw, "image_url"))
		e = e.Add("similarity", str(raw, "similarity"))
		return e
	},
}

// Fallback for unrecognized record shapes. Kept low-stakes so an unknown
// provider payload never disappears silently.
var genericRule = rule{
	kind: finding.KindGeneric,
	score: func(raw map[string]any) (finding.Severity, float64) {
		return finding.SeverityLow, 0.5
	},
	seed: func(raw map[string]any, sc Context) string {
		// First string value in sorted key order keeps the seed stable for
		// identical records regardless of map iteration.
		var keys []string
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := raw[k].(string); ok && s != "" {
				return k + " " + s
			}
		}
		return sc.IdentifierValue
	},
	title: func(raw map[string]any, sc Context) string {
		return "Unclassified provider record"
	},
	evidence: func(raw map[string]any, sc Context) finding.Evidence {
		var e finding.Evidence
		e = e.Add("identifier", sc.IdentifierValue)
		var keys []string
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := raw[k].(string); ok {
				e = e.Add(k, s)
			}
		}
		return e
	},
}
