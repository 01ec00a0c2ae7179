package providers

import (
	"github.com/traceprint/api/internal/app"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/logger"
)

// Registry maps provider IDs to adapters.
type Registry struct {
	adapters map[provider.ID]app.Adapter
}

// NewRegistry builds the registry of built-in adapters. Credentials are keyed
// by the catalog's credential_key; an adapter is registered regardless of
// whether its credential is present, because the dispatcher's configuration
// gate runs before the adapter is reached.
func NewRegistry(credentials map[string]string, log *logger.Logger) *Registry {
	r := &Registry{adapters: make(map[provider.ID]app.Adapter)}

	r.Register("breachdirectory", NewBreachDirectory(credentials["BREACHDIRECTORY_API_KEY"], log))
	r.Register("socialscan", NewSocialScan(log))
	r.Register("phoneintel", NewPhoneIntel(credentials["PHONEINTEL_API_KEY"], log))
	r.Register("ipwatch", NewIPWatch(credentials["IPWATCH_API_KEY"], log))
	r.Register("darkfeed", NewDarkFeed(credentials["DARKFEED_API_KEY"], log))

	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(id provider.ID, a app.Adapter) {
	r.adapters[id] = a
}

// Adapter resolves an adapter by provider ID.
func (r *Registry) Adapter(id provider.ID) (app.Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}
