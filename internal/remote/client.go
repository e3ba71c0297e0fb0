// Package remote is the HTTP client for the kripika.com backend: the
// Supabase REST surface for prices, the item catalog and session sync,
// plus the auth token endpoints. Public reads authenticate with the
// project anon key; user-scoped calls take the caller's JWT.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kripika/tli-tracker/internal/catalog"
	"github.com/kripika/tli-tracker/internal/pricing"
)

// Client makes REST calls to the backend.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

// NewClient creates a client targeting the given project URL (e.g.
// "https://project.supabase.co"). A non-positive timeout falls back to
// ten seconds.
func NewClient(baseURL, anonKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		anonKey: anonKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type priceRow struct {
	GameID      int64     `json:"game_id"`
	Price       float64   `json:"price"`
	LastUpdated time.Time `json:"last_updated"`
}

type leaguePriceRow struct {
	GameID          int64     `json:"game_id"`
	Price           float64   `json:"price"`
	LastUpdated     time.Time `json:"last_updated"`
	LeagueID        int       `json:"league_id"`
	LeagueName      string    `json:"league_name"`
	IsCurrentLeague bool      `json:"is_current_league"`
}

type itemRow struct {
	GameID         int64   `json:"game_id"`
	NameEN         *string `json:"name_en"`
	NameRU         *string `json:"name_ru"`
	NameCN         *string `json:"name_cn"`
	Category       *string `json:"category"`
	IconURL        *string `json:"icon_url"`
	IsBaseCurrency bool    `json:"is_base_currency"`
}

// FetchCurrentPrices reads the plain current-price feed.
func (c *Client) FetchCurrentPrices(ctx context.Context) ([]pricing.RemotePrice, error) {
	var rows []priceRow
	err := c.getJSON(ctx, "/rest/v1/tli_current_prices?select=game_id,price,last_updated", "", &rows)
	if err != nil {
		return nil, err
	}
	out := make([]pricing.RemotePrice, 0, len(rows))
	for _, r := range rows {
		out = append(out, pricing.RemotePrice{
			GameID:    r.GameID,
			Price:     r.Price,
			UpdatedAt: r.LastUpdated,
		})
	}
	return out, nil
}

// FetchPricesWithFallback reads the league-aware feed: current-league
// prices plus previous-league prices for items that have none yet.
func (c *Client) FetchPricesWithFallback(ctx context.Context) ([]pricing.LeaguePrice, error) {
	var rows []leaguePriceRow
	err := c.postJSON(ctx, "/rest/v1/rpc/get_prices_with_fallback", "", struct{}{}, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]pricing.LeaguePrice, 0, len(rows))
	for _, r := range rows {
		out = append(out, pricing.LeaguePrice{
			GameID:          r.GameID,
			Price:           r.Price,
			UpdatedAt:       r.LastUpdated,
			LeagueName:      r.LeagueName,
			IsCurrentLeague: r.IsCurrentLeague,
		})
	}
	return out, nil
}

// FetchCatalog reads all game items. Rows with no English name get an
// "ID: <gameID>" placeholder so the UI always has something to show.
func (c *Client) FetchCatalog(ctx context.Context) ([]catalog.Item, error) {
	const path = "/rest/v1/tli_game_items?select=game_id,name_en,name_ru,name_cn,category,icon_url,is_base_currency"
	var rows []itemRow
	if err := c.getJSON(ctx, path, "", &rows); err != nil {
		return nil, err
	}
	out := make([]catalog.Item, 0, len(rows))
	for _, r := range rows {
		out = append(out, catalog.Item{
			GameID:         r.GameID,
			Name:           strOr(r.NameEN, fmt.Sprintf("ID: %d", r.GameID)),
			NameEN:         strOr(r.NameEN, ""),
			NameRU:         strOr(r.NameRU, ""),
			NameCN:         strOr(r.NameCN, ""),
			Category:       strOr(r.Category, "unknown"),
			IconURL:        strOr(r.IconURL, ""),
			IsBaseCurrency: r.IsBaseCurrency,
		})
	}
	return out, nil
}

// UpsertMarketPrice submits raw auction price samples for one item.
// Requires a logged-in user; an empty sample set is a no-op.
func (c *Client) UpsertMarketPrice(ctx context.Context, userJWT string, gameID int64, prices []float64, currencyID int64) error {
	if len(prices) == 0 {
		return nil
	}
	body := struct {
		GameID     int64     `json:"p_game_id"`
		Prices     []float64 `json:"p_prices"`
		CurrencyID int64     `json:"p_currency_id"`
	}{gameID, prices, currencyID}
	return c.postJSON(ctx, "/rest/v1/rpc/upsert_market_price", userJWT, body, nil)
}

func (c *Client) getJSON(ctx context.Context, path, bearer string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, bearer, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path, bearer string, body, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, bearer, body)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// newRequest builds a request with the project headers set. An empty
// bearer falls back to the anon key.
func (c *Client) newRequest(ctx context.Context, method, path, bearer string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func strOr(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}
