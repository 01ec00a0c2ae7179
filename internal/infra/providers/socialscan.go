package providers

import (
	"context"
	"errors"
	"net/url"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/logger"
)

// SocialScan enumerates public social profiles registered under a username
// or email. The upstream is unauthenticated, so the adapter carries no
// credential.
type SocialScan struct {
	client *apiClient
}

// NewSocialScan creates the socialscan adapter.
func NewSocialScan(log *logger.Logger) *SocialScan {
	return &SocialScan{
		client: newAPIClient("https://api.socialscan.dev/v2", 2, log.With("provider", "socialscan")),
	}
}

type socialScanResponse struct {
	Profiles []struct {
		Platform string `json:"platform"`
		Username string `json:"username"`
		URL      string `json:"url"`
		Verified bool   `json:"verified"`
	} `json:"profiles"`
}

// Call enumerates social profiles matching the identifier.
func (s *SocialScan) Call(ctx context.Context, identifierType provider.IdentifierType, identifierValue string) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("query", identifierValue)
	q.Set("mode", string(identifierType))

	var resp socialScanResponse
	err := s.client.getJSON(ctx, "/profiles", q, nil, &resp)
	if errors.Is(err, errNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0, len(resp.Profiles))
	for _, p := range resp.Profiles {
		records = append(records, map[string]any{
			"platform": p.Platform,
			"username": p.Username,
			"url":      p.URL,
			"verified": p.Verified,
		})
	}
	return records, nil
}
