package boundary

import (
	"context"
	"errors"

	"github.com/gridassign/gridassign/internal/subplanner"
)

// DDM adapts an HTTP Distributed Data Management endpoint to
// internal/subplanner.DDM.
type DDM struct {
	http    *HTTPClient
	baseURL string
}

// NewDDM returns a DDM backed by a default-timeout HTTPClient.
func NewDDM(baseURL string) *DDM {
	return &DDM{http: NewHTTPClient(defaultAdapterTimeout), baseURL: baseURL}
}

// NewDDMWithClient wires a pre-built HTTPClient.
func NewDDMWithClient(baseURL string, c *HTTPClient) *DDM {
	return &DDM{http: c, baseURL: baseURL}
}

type listSubscriptionInfoRequest struct {
	Dataset  string `json:"dataset"`
	Endpoint string `json:"endpoint"`
}

type listSubscriptionInfoResponse struct {
	Exists  bool   `json:"exists"`
	OwnerDN string `json:"owner_dn"`
}

// ListSubscriptionInfo implements internal/subplanner.DDM. A 404 response
// is translated to subplanner.ErrDestinationUnknown, per spec.md §4.5 step
// 2's "treat as no subscription, not a probe failure" rule.
func (d *DDM) ListSubscriptionInfo(ctx context.Context, dataset, endpoint string) (subplanner.SubscriptionInfo, error) {
	var resp listSubscriptionInfoResponse
	err := d.http.postJSON(ctx, d.baseURL+"/subscriptions/info", listSubscriptionInfoRequest{
		Dataset: dataset, Endpoint: endpoint,
	}, &resp)
	if err != nil {
		if errors.Is(err, ErrUnknownDestination) {
			return subplanner.SubscriptionInfo{}, subplanner.ErrDestinationUnknown
		}
		return subplanner.SubscriptionInfo{}, err
	}
	return subplanner.SubscriptionInfo{Exists: resp.Exists, OwnerDN: resp.OwnerDN}, nil
}

type listFilesRequest struct {
	Dataset string `json:"dataset"`
}

type listFilesResponse struct {
	Files []subplanner.FileInfo `json:"files"`
}

// ListFilesInDataset implements internal/subplanner.DDM.
func (d *DDM) ListFilesInDataset(ctx context.Context, dataset string) ([]subplanner.FileInfo, error) {
	var resp listFilesResponse
	if err := d.http.postJSON(ctx, d.baseURL+"/datasets/list-files", listFilesRequest{Dataset: dataset}, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

type registerSubscriptionRequest struct {
	Dataset  string                     `json:"dataset"`
	Endpoint string                     `json:"endpoint"`
	Options  subplanner.RegisterOptions `json:"options"`
}

// RegisterDatasetSubscription implements internal/subplanner.DDM. A 409
// response (already has a live subscription) is translated to
// subplanner.ErrAlreadyExists, per spec.md §4.5 step 5's "treat as success"
// rule.
func (d *DDM) RegisterDatasetSubscription(ctx context.Context, dataset, endpoint string, opts subplanner.RegisterOptions) error {
	err := d.http.postJSON(ctx, d.baseURL+"/subscriptions/register", registerSubscriptionRequest{
		Dataset: dataset, Endpoint: endpoint, Options: opts,
	}, nil)
	if err == nil {
		return nil
	}
	var httpErr *statusError
	if errors.As(err, &httpErr) && httpErr.Status == 409 {
		return subplanner.ErrAlreadyExists
	}
	if errors.Is(err, ErrUnknownDestination) {
		return subplanner.ErrDestinationUnknown
	}
	return err
}
