// Package api implements the HTTP clients for the split backend: the
// splitChanges fetcher and the auth handshake.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"flagclient/models"
	"flagclient/telemetry"
)

const defaultRequestTimeout = 30 * time.Second

// FetchOptions tunes a single splitChanges request.
type FetchOptions struct {
	// CacheControlNoCache asks intermediate caches to revalidate.
	CacheControlNoCache bool
	// Till, when set, is forwarded as a query argument so the backend can
	// bypass stale CDN content.
	Till *int64
}

// Metadata identifies this SDK instance to the backend.
type Metadata struct {
	SDKVersion  string
	MachineName string
	InstanceID  string
}

// SplitAPI fetches split definitions from the backend.
type SplitAPI struct {
	http     *resty.Client
	apikey   string
	metadata Metadata
	logger   *logrus.Logger
}

// NewSplitAPI builds a SplitAPI against the given base URL.
func NewSplitAPI(baseURL, apikey string, metadata Metadata, logger *logrus.Logger) *SplitAPI {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultRequestTimeout).
		SetHeader("Accept", "application/json")
	return &SplitAPI{
		http:     client,
		apikey:   apikey,
		metadata: metadata,
		logger:   logger,
	}
}

// FetchSplits requests all split changes since the given change number.
// Any non-2xx status or transport failure comes back as *Error.
func (a *SplitAPI) FetchSplits(ctx context.Context, changeNumber int64, opts FetchOptions) (*models.SplitChanges, error) {
	req := a.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+a.apikey).
		SetHeader("SplitSDKVersion", a.metadata.SDKVersion).
		SetHeader("SplitSDKMachineName", a.metadata.MachineName).
		SetHeader("SplitSDKMachineIP", a.metadata.InstanceID).
		SetQueryParam("since", strconv.FormatInt(changeNumber, 10))

	if opts.CacheControlNoCache {
		req.SetHeader("Cache-Control", "no-cache")
	}
	if opts.Till != nil {
		req.SetQueryParam("till", strconv.FormatInt(*opts.Till, 10))
	}

	resp, err := req.Get("/splitChanges")
	if err != nil {
		telemetry.RecordFetch(err)
		a.logger.Errorf("error fetching split changes: %v", err)
		return nil, NewError("error fetching split changes", 0, err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		telemetry.SplitFetches.WithLabelValues("error").Inc()
		return nil, NewError(
			fmt.Sprintf("split changes request failed: %s", resp.Status()),
			resp.StatusCode(),
			nil,
		)
	}

	var changes models.SplitChanges
	if err := json.Unmarshal(resp.Body(), &changes); err != nil {
		telemetry.RecordFetch(err)
		return nil, NewError("malformed split changes payload", resp.StatusCode(), err)
	}
	telemetry.RecordFetch(nil)
	return &changes, nil
}
