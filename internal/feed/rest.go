package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

const defaultRESTURL = "https://fapi.binance.com"

// RESTClient fetches historical klines over HTTP. It implements
// model.MarketData for indicator warm-up when no local candle history exists.
type RESTClient struct {
	baseURL string
	client  *http.Client
}

// NewRESTClient creates a klines client. An empty baseURL uses the futures
// production endpoint.
func NewRESTClient(baseURL string) *RESTClient {
	if baseURL == "" {
		baseURL = defaultRESTURL
	}
	return &RESTClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// RecentCandles fetches up to count most recent closed candles, oldest first.
func (c *RESTClient) RecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]model.PricePoint, error) {
	if _, err := TimeframeDuration(timeframe); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", timeframe)
	q.Set("limit", strconv.Itoa(count+1)) // extra row: the last kline is still forming

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fapi/v1/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("klines request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("klines fetch %s %s: %w", symbol, timeframe, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("klines read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines fetch %s %s: status %d: %s", symbol, timeframe, resp.StatusCode, body)
	}

	points, err := ParseKlines(body, symbol, timeframe)
	if err != nil {
		return nil, err
	}

	// Drop the still-forming last kline.
	if len(points) > 0 {
		points = points[:len(points)-1]
	}
	if len(points) > count {
		points = points[len(points)-count:]
	}
	return points, nil
}

// ParseKlines decodes the klines response: an array of rows, each
// [openTimeMs, "open", "high", "low", "close", "volume", ...].
func ParseKlines(data []byte, symbol, timeframe string) ([]model.PricePoint, error) {
	var rows [][]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("klines unmarshal: %w", err)
	}

	points := make([]model.PricePoint, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("klines row %d: %d fields, want at least 6", i, len(row))
		}

		openTS, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("klines row %d: open time is %T", i, row[0])
		}

		p := model.PricePoint{
			Symbol:    symbol,
			Timeframe: timeframe,
			TS:        time.Unix(0, int64(openTS)*int64(time.Millisecond)).UTC(),
		}

		fields := []*float64{&p.Open, &p.High, &p.Low, &p.Close, &p.Volume}
		for j, dst := range fields {
			s, ok := row[j+1].(string)
			if !ok {
				return nil, fmt.Errorf("klines row %d field %d: %T, want string", i, j+1, row[j+1])
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("klines row %d field %d: %w", i, j+1, err)
			}
			*dst = v
		}

		points = append(points, p)
	}
	return points, nil
}
