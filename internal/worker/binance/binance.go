// Package binance adapts Binance's combined miniTicker websocket stream to
// the generic worker.AssetInfoProvider contract.
//
// Grounded on original_source/bothan-binance/src/api/websocket.rs (connector
// shape, SUBSCRIBE payload) and teacher's
// internal/clients/tradernet/websocket_client.go for the Go connection idiom
// (nhooyr.io/websocket dial, mutex-free single-owner read loop since the
// generic driver already serializes access).
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"signalserver/internal/types"
	"signalserver/internal/worker"
)

const DefaultURL = "wss://stream.binance.com:9443/stream"

// maxTickersPerSubscribe matches Binance's documented limit on stream names
// per SUBSCRIBE request — the generic driver's batch must be chunked rather
// than sent as one oversized message.
const maxTickersPerSubscribe = 200

// Connector dials fresh websocket connections to Binance.
type Connector struct {
	URL string
}

func NewConnector(url string) *Connector {
	if url == "" {
		url = DefaultURL
	}
	return &Connector{URL: url}
}

func (c *Connector) Connect(ctx context.Context) (worker.AssetInfoProvider, error) {
	conn, _, err := websocket.Dial(ctx, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: dial: %w", err)
	}
	return &Connection{conn: conn}, nil
}

// Connection is one live Binance combined-stream connection.
type Connection struct {
	conn *websocket.Conn
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

func (c *Connection) Subscribe(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += maxTickersPerSubscribe {
		end := start + maxTickersPerSubscribe
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		streams := make([]string, len(chunk))
		for i, id := range chunk {
			streams[i] = id + "@miniTicker"
		}

		req := subscribeRequest{Method: "SUBSCRIBE", Params: streams, ID: int64(start)}
		if err := wsjson.Write(ctx, c.conn, req); err != nil {
			return fmt.Errorf("binance: subscribe: %w", err)
		}
	}
	return nil
}

func (c *Connection) Unsubscribe(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += maxTickersPerSubscribe {
		end := start + maxTickersPerSubscribe
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		streams := make([]string, len(chunk))
		for i, id := range chunk {
			streams[i] = id + "@miniTicker"
		}

		req := subscribeRequest{Method: "UNSUBSCRIBE", Params: streams, ID: int64(start)}
		if err := wsjson.Write(ctx, c.conn, req); err != nil {
			return fmt.Errorf("binance: unsubscribe: %w", err)
		}
	}
	return nil
}

type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type miniTicker struct {
	Symbol    string `json:"s"`
	ClosePx   string `json:"c"`
	EventTime int64  `json:"E"`
}

func (c *Connection) Next(ctx context.Context) (worker.Data, error, bool) {
	var envelope streamEnvelope
	if err := wsjson.Read(ctx, c.conn, &envelope); err != nil {
		return worker.Data{}, nil, false
	}

	if envelope.Stream == "" {
		return worker.Data{Kind: worker.DataUnused}, nil, true
	}

	var mt miniTicker
	if err := json.Unmarshal(envelope.Data, &mt); err != nil {
		return worker.Data{}, fmt.Errorf("binance: decode miniTicker: %w", err), true
	}

	price, err := types.ParsePrice(mt.ClosePx)
	if err != nil {
		return worker.Data{}, fmt.Errorf("binance: parse price: %w", err), true
	}

	asset := types.AssetInfo{
		ID:        strings.ToLower(mt.Symbol),
		Price:     price,
		Timestamp: mt.EventTime / 1000, // exchange quotes milliseconds; truncate to seconds
	}
	return worker.Data{Kind: worker.DataAssetInfo, Assets: []types.AssetInfo{asset}}, nil, true
}

func (c *Connection) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
