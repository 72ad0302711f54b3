// Package mpapi talks to the Mountain Project data API
// (https://www.mountainproject.com/data).
package mpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://www.mountainproject.com/data"

// MaxRoutesPerRequest is the documented get-routes limit.
const MaxRoutesPerRequest = 200

// ErrUpstream marks responses where the API itself reported failure
// (success != 1 in a 200 body, or a non-200 status).
var ErrUpstream = errors.New("api reported failure")

// Tick is a single tick as returned by the get-ticks endpoint.
type Tick struct {
	RouteID    int64  `json:"routeId"`
	Date       string `json:"date"` // "YYYY-MM-DD"
	Pitches    int    `json:"pitches"`
	Notes      string `json:"notes"`
	Style      string `json:"style"`     // "Solo", "TR", "Follow", "Lead", ...
	LeadStyle  string `json:"leadStyle"` // "Onsight", "Flash", "Redpoint", ...
	TickID     int64  `json:"tickId"`
	UserStars  int    `json:"userStars"`  // -1 if unset
	UserRating string `json:"userRating"` // "" if unset
}

// Route is a single route as returned by the get-routes endpoint.
type Route struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`   // comma-separated list
	Rating    string   `json:"rating"` // actually the grade, e.g. "5.11a"
	Stars     float64  `json:"stars"`
	StarVotes int      `json:"starVotes"`
	Pitches   IntOrStr `json:"pitches"` // number or empty string
	Location  []string `json:"location"`
	URL       string   `json:"url"`
	Longitude float64  `json:"longitude"`
	Latitude  float64  `json:"latitude"`
}

// IntOrStr decodes a JSON field that the API serves either as a number or
// as a (possibly empty) numeric string.
type IntOrStr int

func (v *IntOrStr) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*v = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("bad quoted int %s: %w", s, err)
		}
		s = strings.TrimSpace(unquoted)
		if s == "" {
			*v = 0
			return nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("bad int %q: %w", s, err)
	}
	*v = IntOrStr(n)
	return nil
}

// Client fetches ticks and routes. The zero BaseURL means production.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client for the given API root ("" for production).
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type getTicksResult struct {
	Hardest string `json:"hardest"`
	Average string `json:"average"`
	Ticks   []Tick `json:"ticks"`
	Success int    `json:"success"`
}

// GetTicks pages through the user's ticks from newest to oldest and
// returns every tick with an ID above minTickID, newest first. Each page
// starts at the number of ticks accumulated so far, so a retried call
// never double-counts.
func (c *Client) GetTicks(ctx context.Context, email, key string, minTickID int64) ([]Tick, error) {
	var ticks []Tick
	for {
		params := url.Values{}
		params.Set("email", email)
		params.Set("key", key)
		params.Set("startPos", strconv.Itoa(len(ticks)))

		var result getTicksResult
		if err := c.getJSON(ctx, "/get-ticks", params, &result); err != nil {
			return nil, fmt.Errorf("get-ticks: %w", err)
		}
		if result.Success != 1 {
			return nil, fmt.Errorf("get-ticks: %w", ErrUpstream)
		}
		if len(result.Ticks) == 0 {
			return ticks, nil
		}
		for _, tick := range result.Ticks {
			if tick.TickID <= minTickID {
				return ticks, nil
			}
			ticks = append(ticks, tick)
		}
	}
}

type getRoutesResult struct {
	Routes  []Route `json:"routes"`
	Success int     `json:"success"`
}

// GetRoutes fetches the named routes in batches of MaxRoutesPerRequest,
// concatenated in batch order.
func (c *Client) GetRoutes(ctx context.Context, key string, routeIDs []int64) ([]Route, error) {
	var routes []Route
	for start := 0; start < len(routeIDs); start += MaxRoutesPerRequest {
		end := start + MaxRoutesPerRequest
		if end > len(routeIDs) {
			end = len(routeIDs)
		}
		ids := make([]string, 0, end-start)
		for _, id := range routeIDs[start:end] {
			ids = append(ids, strconv.FormatInt(id, 10))
		}

		params := url.Values{}
		params.Set("key", key)
		params.Set("routeIds", strings.Join(ids, ","))

		var result getRoutesResult
		if err := c.getJSON(ctx, "/get-routes", params, &result); err != nil {
			return nil, fmt.Errorf("get-routes: %w", err)
		}
		if result.Success != 1 {
			return nil, fmt.Errorf("get-routes: %w", ErrUpstream)
		}
		routes = append(routes, result.Routes...)
	}
	return routes, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// A bad API key surfaces as a bare transport failure, so hint
		// at both possibilities.
		return fmt.Errorf("network error or bad credentials: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %w", resp.StatusCode, ErrUpstream)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("bad response body: %w", err)
	}
	return nil
}
