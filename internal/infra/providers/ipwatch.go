package providers

import (
	"context"
	"errors"
	"net/url"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/logger"
)

// IPWatch reports abuse reputation for an IP address.
type IPWatch struct {
	client *apiClient
	apiKey string
}

// NewIPWatch creates the ipwatch adapter.
func NewIPWatch(apiKey string, log *logger.Logger) *IPWatch {
	return &IPWatch{
		client: newAPIClient("https://api.ipwatch.dev/v1", 4, log.With("provider", "ipwatch")),
		apiKey: apiKey,
	}
}

type ipWatchResponse struct {
	AbuseScore   int    `json:"abuse_score"`
	TotalReports int    `json:"total_reports"`
	LastReported string `json:"last_reported"`
	ISP          string `json:"isp"`
	CountryCode  string `json:"country_code"`
}

// Call looks up IP reputation. An unreported address is an empty result.
func (w *IPWatch) Call(ctx context.Context, identifierType provider.IdentifierType, identifierValue string) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("ip", identifierValue)

	var resp ipWatchResponse
	err := w.client.getJSON(ctx, "/check", q, map[string]string{"X-Api-Key": w.apiKey}, &resp)
	if errors.Is(err, errNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if resp.TotalReports == 0 && resp.AbuseScore == 0 {
		return nil, nil
	}

	return []map[string]any{{
		"abuse_score":   resp.AbuseScore,
		"total_reports": resp.TotalReports,
		"last_reported": resp.LastReported,
		"isp":           resp.ISP,
		"country_code":  resp.CountryCode,
	}}, nil
}
