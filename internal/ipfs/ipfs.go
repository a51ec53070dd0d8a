// Package ipfs provides the opaque fetch-by-hash capability SetRegistryFromIPFS
// needs, kept out of core scope per spec.md but represented here as the
// ambient external-interface surface SPEC_FULL.md calls for.
package ipfs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrNotFound = errors.New("ipfs: hash does not exist")

// Client fetches content by IPFS hash.
type Client interface {
	Get(ctx context.Context, hash string) (string, error)
}

// HTTPGatewayClient fetches content through a public or pinned IPFS HTTP
// gateway (e.g. https://ipfs.io/ipfs/).
type HTTPGatewayClient struct {
	client *resty.Client
}

func NewHTTPGatewayClient(gatewayURL string) *HTTPGatewayClient {
	return &HTTPGatewayClient{
		client: resty.New().SetBaseURL(gatewayURL).SetTimeout(15 * time.Second),
	}
}

func (c *HTTPGatewayClient) Get(ctx context.Context, hash string) (string, error) {
	resp, err := c.client.R().SetContext(ctx).Get("ipfs/" + hash)
	if err != nil {
		return "", fmt.Errorf("ipfs: request: %w", err)
	}
	if resp.StatusCode() == 404 {
		return "", ErrNotFound
	}
	if resp.IsError() {
		return "", fmt.Errorf("ipfs: unexpected status %d", resp.StatusCode())
	}
	return string(resp.Body()), nil
}
