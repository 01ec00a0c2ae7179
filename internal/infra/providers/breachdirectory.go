package providers

import (
	"context"
	"errors"
	"net/url"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/logger"
)

// BreachDirectory queries a breach-corpus API for compromised accounts tied
// to an email or username.
type BreachDirectory struct {
	client *apiClient
	apiKey string
}

// NewBreachDirectory creates the breachdirectory adapter.
func NewBreachDirectory(apiKey string, log *logger.Logger) *BreachDirectory {
	return &BreachDirectory{
		client: newAPIClient("https://api.breachdirectory.dev/v1", 1, log.With("provider", "breachdirectory")),
		apiKey: apiKey,
	}
}

type breachDirectoryResponse struct {
	Breaches []struct {
		Name            string   `json:"name"`
		Date            string   `json:"date"`
		DataClasses     []string `json:"data_classes"`
		IsSensitive     bool     `json:"is_sensitive"`
		RecordsAffected int64    `json:"records_affected"`
	} `json:"breaches"`
}

// Call queries the breach corpus for the identifier.
func (b *BreachDirectory) Call(ctx context.Context, identifierType provider.IdentifierType, identifierValue string) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("account", identifierValue)
	q.Set("type", string(identifierType))

	var resp breachDirectoryResponse
	err := b.client.getJSON(ctx, "/breaches", q, map[string]string{"X-Api-Key": b.apiKey}, &resp)
	if errors.Is(err, errNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0, len(resp.Breaches))
	for _, br := range resp.Breaches {
		rec := map[string]any{
			"breach_name":      br.Name,
			"date_compromised": br.Date,
			"is_sensitive":     br.IsSensitive,
		}
		if len(br.DataClasses) > 0 {
			classes := make([]any, len(br.DataClasses))
			for i, c := range br.DataClasses {
				classes[i] = c
			}
			rec["data_classes"] = classes
		}
		if br.RecordsAffected > 0 {
			rec["records_affected"] = br.RecordsAffected
		}
		records = append(records, rec)
	}
	return records, nil
}
