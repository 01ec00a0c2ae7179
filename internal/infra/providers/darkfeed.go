package providers

import (
	"context"
	"errors"
	"net/url"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/logger"
)

// DarkFeed searches dark web market and forum indexes for mentions of an
// identifier.
type DarkFeed struct {
	client *apiClient
	apiKey string
}

// NewDarkFeed creates the darkfeed adapter.
func NewDarkFeed(apiKey string, log *logger.Logger) *DarkFeed {
	return &DarkFeed{
		client: newAPIClient("https://api.darkfeed.dev/v1", 1, log.With("provider", "darkfeed")),
		apiKey: apiKey,
	}
}

type darkFeedResponse struct {
	Mentions []struct {
		Source      string `json:"source"`
		SourceType  string `json:"source_type"`
		MentionText string `json:"mention_text"`
		SeenAt      string `json:"seen_at"`
	} `json:"mentions"`
}

// Call searches the dark web index for the identifier.
func (d *DarkFeed) Call(ctx context.Context, identifierType provider.IdentifierType, identifierValue string) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("q", identifierValue)

	var resp darkFeedResponse
	err := d.client.getJSON(ctx, "/search", q, map[string]string{"Authorization": "Bearer " + d.apiKey}, &resp)
	if errors.Is(err, errNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0, len(resp.Mentions))
	for _, m := range resp.Mentions {
		rec := map[string]any{
			"mention_text": m.MentionText,
			"seen_at":      m.SeenAt,
		}
		// The normalizer keys dark web findings off market or forum fields.
		switch m.SourceType {
		case "market":
			rec["market"] = m.Source
		default:
			rec["forum"] = m.Source
		}
		records = append(records, rec)
	}
	return records, nil
}
