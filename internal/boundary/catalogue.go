package boundary

import "context"

// Catalogue adapts an HTTP replica-catalogue endpoint to
// internal/locator.Catalogue. CountFiles targets the per-call catalogueURL
// the Controller derives from the task's Tier-1/Tier-2 sites (spec.md
// §4.1); ListFileReplicasBySites has no such per-call target (see
// locator.Locator.Refresh), so it always addresses baseURL.
type Catalogue struct {
	http    *HTTPClient
	baseURL string
}

// NewCatalogue returns a Catalogue whose refresh path targets baseURL,
// using a default per-probe timeout.
func NewCatalogue(baseURL string) *Catalogue {
	return &Catalogue{http: NewHTTPClient(defaultAdapterTimeout), baseURL: baseURL}
}

// NewCatalogueWithClient wires a pre-built HTTPClient (shared across
// adapters, or configured with a non-default timeout).
func NewCatalogueWithClient(baseURL string, c *HTTPClient) *Catalogue {
	return &Catalogue{http: c, baseURL: baseURL}
}

type countFilesRequest struct {
	LFNs         []string `json:"lfns"`
	GUIDs        []string `json:"guids"`
	StorageHosts []string `json:"storage_hosts"`
}

type countFilesResponse struct {
	Count int `json:"count"`
}

// CountFiles implements internal/locator.Catalogue.
func (c *Catalogue) CountFiles(ctx context.Context, catalogueURL string, lfns, guids []string, storageHosts []string) (int, error) {
	var resp countFilesResponse
	err := c.http.postJSON(ctx, catalogueURL+"/count-files", countFilesRequest{
		LFNs: lfns, GUIDs: guids, StorageHosts: storageHosts,
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

type listReplicasRequest struct {
	Dataset string   `json:"dataset"`
	Sites   []string `json:"sites"`
}

// ListFileReplicasBySites implements internal/locator.Catalogue.
func (c *Catalogue) ListFileReplicasBySites(ctx context.Context, dataset string, sites []string) error {
	return c.http.postJSON(ctx, c.baseURL+"/replicas/list-by-sites", listReplicasRequest{
		Dataset: dataset, Sites: sites,
	}, nil)
}
