// exchange/client.go
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"okx_stop_go/logs"
	"okx_stop_go/utils"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Ensure APIClient struct implements Client interface
var _ Client = (*APIClient)(nil)

const defaultBaseURL = "https://www.okx.com"

// APIClient is the client for interacting with the OKX v5 REST API.
type APIClient struct {
	ApiKey     string
	ApiSecret  string
	Passphrase string
	BaseURL    string
	Http       *http.Client

	simulated bool // demo-trading flag, adds the x-simulated-trading header

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	instrumentCache map[string]InstrumentInfo
	instrumentMutex sync.RWMutex
}

// okxEnvelope is the standard OKX v5 response wrapper.
type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// algoResult is the per-order result element for algo order placement/cancellation.
type algoResult struct {
	AlgoID      string `json:"algoId"`
	AlgoClOrdID string `json:"algoClOrdId"`
	SCode       string `json:"sCode"`
	SMsg        string `json:"sMsg"`
}

// NewAPIClient creates a new API client instance. An empty baseURL falls back
// to the production endpoint.
func NewAPIClient(apiKey, apiSecret, passphrase, baseURL string, timeoutSeconds int, rps float64, burst int, simulated bool) *APIClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "okx-rest",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logs.Warnf("[API Client] Circuit breaker '%s' changed state: %s -> %s", name, from, to)
		},
	})

	return &APIClient{
		ApiKey:          apiKey,
		ApiSecret:       apiSecret,
		Passphrase:      passphrase,
		BaseURL:         baseURL,
		Http:            &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		simulated:       simulated,
		limiter:         rate.NewLimiter(rate.Limit(rps), burst),
		breaker:         breaker,
		instrumentCache: make(map[string]InstrumentInfo),
	}
}

// sign produces the OK-ACCESS-SIGN header value for a request:
// Base64(HMAC-SHA256(timestamp + method + requestPath + body, secret)).
func (c *APIClient) sign(timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(c.ApiSecret))
	_, _ = mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// sendRequest is the generic request path: rate limiting, circuit breaking,
// signing, sending, envelope decoding and error handling.
func (c *APIClient) sendRequest(ctx context.Context, method, endpoint string, query url.Values, reqBody, target interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	requestPath := endpoint
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		var bodyReader io.Reader
		if len(bodyBytes) > 0 {
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+requestPath, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.ApiKey != "" {
			timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
			req.Header.Set("OK-ACCESS-KEY", c.ApiKey)
			req.Header.Set("OK-ACCESS-SIGN", c.sign(timestamp, method, requestPath, string(bodyBytes)))
			req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
			req.Header.Set("OK-ACCESS-PASSPHRASE", c.Passphrase)
		}
		if c.simulated {
			req.Header.Set("x-simulated-trading", "1")
		}

		resp, err := c.Http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("API error: HTTP %d, body: %s", resp.StatusCode, string(respBody))
		}
		return respBody, nil
	})
	if err != nil {
		return err
	}

	var envelope okxEnvelope
	if err := json.Unmarshal(raw.([]byte), &envelope); err != nil {
		return fmt.Errorf("failed to decode response envelope: %w", err)
	}
	if envelope.Code != "0" {
		return fmt.Errorf("API error: %s (code: %s)", envelope.Msg, envelope.Code)
	}

	if target != nil {
		if err := json.Unmarshal(envelope.Data, target); err != nil {
			return fmt.Errorf("failed to decode response data: %w, data: %s", err, string(envelope.Data))
		}
	}
	return nil
}

// GetLastPrice retrieves the last-traded price for a contract.
func (c *APIClient) GetLastPrice(symbol string) (float64, error) {
	query := url.Values{}
	query.Set("instId", symbol)

	var tickers []struct {
		Last string `json:"last"`
	}
	err := c.sendRequest(context.Background(), http.MethodGet, "/api/v5/market/ticker", query, nil, &tickers)
	if err != nil {
		return 0, err
	}
	if len(tickers) == 0 {
		return 0, fmt.Errorf("no ticker data returned for %s", symbol)
	}
	return strconv.ParseFloat(tickers[0].Last, 64)
}

// PlaceTriggerOrder submits a reduce-only trigger order at the given price,
// triggered on the last-traded price, and returns the algo order id.
func (c *APIClient) PlaceTriggerOrder(ctx context.Context, req *TriggerOrderRequest) (string, error) {
	clOrdID := req.ClientOrderID
	if clOrdID == "" {
		clOrdID = newClientOrderID()
	}

	triggerPx := req.TriggerPrice
	if info, ok := c.GetInstrument(req.Symbol); ok {
		triggerPx = utils.AdjustPriceToTickSize(triggerPx, info.TickSize)
	}

	body := map[string]interface{}{
		"instId":        req.Symbol,
		"tdMode":        "cross",
		"side":          string(req.Side),
		"ordType":       "trigger",
		"sz":            strconv.FormatFloat(req.Size, 'f', -1, 64),
		"triggerPx":     strconv.FormatFloat(triggerPx, 'f', -1, 64),
		"triggerPxType": "last",
		"orderPx":       "-1", // market execution once triggered
		"reduceOnly":    true,
		"algoClOrdId":   clOrdID,
	}

	var results []algoResult
	if err := c.sendRequest(ctx, http.MethodPost, "/api/v5/trade/order-algo", nil, body, &results); err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", fmt.Errorf("empty algo order response for %s", req.Symbol)
	}
	if results[0].SCode != "0" {
		return "", fmt.Errorf("algo order rejected: %s (sCode: %s)", results[0].SMsg, results[0].SCode)
	}
	return results[0].AlgoID, nil
}

// CancelTriggerOrder cancels an active trigger order by its algo id.
func (c *APIClient) CancelTriggerOrder(ctx context.Context, orderID, symbol string) error {
	body := []map[string]string{
		{"algoId": orderID, "instId": symbol},
	}

	var results []algoResult
	if err := c.sendRequest(ctx, http.MethodPost, "/api/v5/trade/cancel-algos", nil, body, &results); err != nil {
		return err
	}
	if len(results) > 0 && results[0].SCode != "0" {
		return fmt.Errorf("cancel rejected: %s (sCode: %s)", results[0].SMsg, results[0].SCode)
	}
	return nil
}

// GetPositions lists the account's open swap positions.
func (c *APIClient) GetPositions(ctx context.Context) ([]PositionInfo, error) {
	query := url.Values{}
	query.Set("instType", "SWAP")

	var raw []struct {
		InstID  string `json:"instId"`
		PosSide string `json:"posSide"`
		Pos     string `json:"pos"`
		AvgPx   string `json:"avgPx"`
		Lever   string `json:"lever"`
		Upl     string `json:"upl"`
	}
	if err := c.sendRequest(ctx, http.MethodGet, "/api/v5/account/positions", query, nil, &raw); err != nil {
		return nil, err
	}

	positions := make([]PositionInfo, 0, len(raw))
	for _, p := range raw {
		contracts, _ := strconv.ParseFloat(p.Pos, 64)
		if contracts == 0 {
			continue
		}
		entryPrice, _ := strconv.ParseFloat(p.AvgPx, 64)
		leverage, _ := strconv.Atoi(p.Lever)
		upl, _ := strconv.ParseFloat(p.Upl, 64)

		side := p.PosSide
		// In net mode posSide is "net" and direction is carried by the sign.
		if side == "net" || side == "" {
			if contracts > 0 {
				side = "long"
			} else {
				side = "short"
			}
		}
		// Once the side is derived the sign is redundant; order sizes must be
		// positive.
		contracts = math.Abs(contracts)

		positions = append(positions, PositionInfo{
			Symbol:           p.InstID,
			Side:             side,
			Contracts:        contracts,
			EntryPrice:       entryPrice,
			Leverage:         leverage,
			UnrealizedProfit: upl,
		})
	}
	return positions, nil
}

// GetInstrument retrieves contract rule information from the cache, fetching
// and caching it on first use. A fetch failure is logged and reported as a miss
// so callers fall back to unadjusted prices.
func (c *APIClient) GetInstrument(symbol string) (InstrumentInfo, bool) {
	c.instrumentMutex.RLock()
	info, ok := c.instrumentCache[symbol]
	c.instrumentMutex.RUnlock()
	if ok {
		return info, true
	}

	query := url.Values{}
	query.Set("instType", "SWAP")
	query.Set("instId", symbol)

	var raw []struct {
		InstID string `json:"instId"`
		TickSz string `json:"tickSz"`
		LotSz  string `json:"lotSz"`
	}
	if err := c.sendRequest(context.Background(), http.MethodGet, "/api/v5/public/instruments", query, nil, &raw); err != nil {
		logs.Warnf("[API Client] Failed to fetch instrument rules for %s: %v", symbol, err)
		return InstrumentInfo{}, false
	}
	if len(raw) == 0 {
		logs.Warnf("[API Client] No instrument rules returned for %s", symbol)
		return InstrumentInfo{}, false
	}

	tickSize, _ := strconv.ParseFloat(raw[0].TickSz, 64)
	lotSize, _ := strconv.ParseFloat(raw[0].LotSz, 64)
	info = InstrumentInfo{Symbol: raw[0].InstID, TickSize: tickSize, LotSize: lotSize}

	c.instrumentMutex.Lock()
	c.instrumentCache[symbol] = info
	c.instrumentMutex.Unlock()
	logs.Infof("[API Client] Cached instrument rules for %s (tick size %s).", symbol, raw[0].TickSz)
	return info, true
}

// newClientOrderID returns a 32-character id suitable for OKX algoClOrdId,
// which rejects dashes and anything longer than 32 characters.
func newClientOrderID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
