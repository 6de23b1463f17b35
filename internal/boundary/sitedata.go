package boundary

import (
	"context"

	"github.com/gridassign/gridassign/internal/loadoracle"
)

// SiteData adapts an HTTP Task DB endpoint to internal/loadoracle.TaskDB's
// getCurrentSiteData() collaborator call (spec.md §2, §6).
type SiteData struct {
	http    *HTTPClient
	baseURL string
}

// NewSiteData returns a SiteData backed by a default-timeout HTTPClient.
func NewSiteData(baseURL string) *SiteData {
	return &SiteData{http: NewHTTPClient(defaultAdapterTimeout), baseURL: baseURL}
}

// NewSiteDataWithClient wires a pre-built HTTPClient.
func NewSiteDataWithClient(baseURL string, c *HTTPClient) *SiteData {
	return &SiteData{http: c, baseURL: baseURL}
}

type currentSiteDataResponse struct {
	Sites map[string]loadoracle.SiteActivity `json:"sites"`
}

// GetCurrentSiteData implements internal/loadoracle.TaskDB.
func (s *SiteData) GetCurrentSiteData(ctx context.Context) (map[string]loadoracle.SiteActivity, error) {
	var resp currentSiteDataResponse
	if err := s.http.postJSON(ctx, s.baseURL+"/sites/current-activity", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sites, nil
}
