// Package coingecko adapts CoinGecko's /coins/markets REST endpoint to the
// generic worker.RestAssetInfoProvider contract.
//
// Grounded on original_source/bothan-coingecko/src/api/rest.rs
// (get_coins_market: vs_currency=usd, comma-joined ids, paginated by 250).
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"signalserver/internal/types"
)

const DefaultURL = "https://api.coingecko.com/api/v3/"

const pageSize = 250

type Provider struct {
	client *resty.Client
}

func NewProvider(url string) *Provider {
	if url == "" {
		url = DefaultURL
	}
	return &Provider{client: resty.New().SetBaseURL(url).SetTimeout(10 * time.Second)}
}

type market struct {
	ID           string      `json:"id"`
	CurrentPrice json.Number `json:"current_price"`
	LastUpdated  string      `json:"last_updated"`
}

func (p *Provider) GetAssetInfo(ctx context.Context, ids []string) ([]types.AssetInfo, error) {
	var assets []types.AssetInfo

	for start := 0; start < len(ids); start += pageSize {
		end := start + pageSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		page, err := p.fetchPage(ctx, chunk)
		if err != nil {
			return nil, err
		}
		assets = append(assets, page...)
	}
	return assets, nil
}

func (p *Provider) fetchPage(ctx context.Context, ids []string) ([]types.AssetInfo, error) {
	joined := ids[0]
	for _, id := range ids[1:] {
		joined += "," + id
	}

	var markets []market
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"vs_currency": "usd",
			"per_page":    fmt.Sprintf("%d", pageSize),
			"ids":         joined,
			"page":        "1",
		}).
		SetResult(&markets).
		Get("coins/markets")
	if err != nil {
		return nil, fmt.Errorf("coingecko: request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("coingecko: unexpected status %d", resp.StatusCode())
	}

	now := time.Now().Unix()
	assets := make([]types.AssetInfo, 0, len(markets))
	for _, m := range markets {
		price, err := types.ParsePrice(m.CurrentPrice.String())
		if err != nil {
			continue
		}
		assets = append(assets, types.AssetInfo{ID: m.ID, Price: price, Timestamp: now})
	}
	return assets, nil
}
