package providers

import (
	"context"
	"errors"
	"net/url"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/logger"
)

// PhoneIntel resolves carrier and line metadata for a phone number.
type PhoneIntel struct {
	client *apiClient
	apiKey string
}

// NewPhoneIntel creates the phoneintel adapter.
func NewPhoneIntel(apiKey string, log *logger.Logger) *PhoneIntel {
	return &PhoneIntel{
		client: newAPIClient("https://api.phoneintel.dev/v1", 2, log.With("provider", "phoneintel")),
		apiKey: apiKey,
	}
}

type phoneIntelResponse struct {
	Valid    bool   `json:"valid"`
	Carrier  string `json:"carrier"`
	LineType string `json:"line_type"`
	Country  string `json:"country"`
}

// Call looks up one phone number. An invalid number is an empty result.
func (p *PhoneIntel) Call(ctx context.Context, identifierType provider.IdentifierType, identifierValue string) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("number", identifierValue)

	var resp phoneIntelResponse
	err := p.client.getJSON(ctx, "/lookup", q, map[string]string{"X-Api-Key": p.apiKey}, &resp)
	if errors.Is(err, errNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !resp.Valid {
		return nil, nil
	}

	return []map[string]any{{
		"carrier":   resp.Carrier,
		"line_type": resp.LineType,
		"country":   resp.Country,
	}}, nil
}
