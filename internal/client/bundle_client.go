// Package client calls a running bundle service over HTTP.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"productbundle/internal/bundle"
)

type BundleClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewBundleClient(baseURL string) *BundleClient {
	return &BundleClient{baseURL: baseURL, httpClient: http.DefaultClient}
}

// RefreshAffected asks the service to recompute every bundle containing sku.
func (c *BundleClient) RefreshAffected(ctx context.Context, sku string) error {
	return c.post(ctx, fmt.Sprintf("%s/availability/%s/refresh", c.baseURL, url.PathEscape(sku)))
}

// RefreshBundle asks the service to recompute one bundle.
func (c *BundleClient) RefreshBundle(ctx context.Context, bundleSKU string) error {
	return c.post(ctx, fmt.Sprintf("%s/availability/bundles/%s/refresh", c.baseURL, url.PathEscape(bundleSKU)))
}

func (c *BundleClient) post(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", endpoint, bundle.ErrNotBundle)
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}
