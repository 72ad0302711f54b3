package mpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func tickPage(ids ...int64) []Tick {
	ticks := make([]Tick, 0, len(ids))
	for _, id := range ids {
		ticks = append(ticks, Tick{
			TickID:  id,
			RouteID: id * 10,
			Date:    "2020-01-15",
			Pitches: 1,
			Style:   "Lead",
		})
	}
	return ticks
}

func TestGetTicksPaging(t *testing.T) {
	pages := [][]Tick{tickPage(100, 99, 98), tickPage(97, 96, 95), {}}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get-ticks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		startPos, err := strconv.Atoi(r.URL.Query().Get("startPos"))
		if err != nil {
			t.Errorf("bad startPos %q", r.URL.Query().Get("startPos"))
		}
		var page []Tick
		switch startPos {
		case 0:
			page = pages[0]
		case 3:
			page = pages[1]
		case 6:
			page = pages[2]
		default:
			t.Errorf("unexpected startPos %d", startPos)
		}
		json.NewEncoder(w).Encode(map[string]any{"ticks": page, "success": 1})
	}))

	ticks, err := client.GetTicks(context.Background(), "user@example.org", "key", 0)
	if err != nil {
		t.Fatalf("GetTicks failed: %v", err)
	}
	want := []int64{100, 99, 98, 97, 96, 95}
	if len(ticks) != len(want) {
		t.Fatalf("got %d ticks; want %d", len(ticks), len(want))
	}
	for i, id := range want {
		if ticks[i].TickID != id {
			t.Errorf("ticks[%d].TickID = %d; want %d", i, ticks[i].TickID, id)
		}
	}
}

func TestGetTicksStopsAtMinTickID(t *testing.T) {
	pages := [][]Tick{tickPage(100, 99, 98), tickPage(97, 96, 95)}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startPos, _ := strconv.Atoi(r.URL.Query().Get("startPos"))
		page := pages[0]
		if startPos >= 3 {
			page = pages[1]
		}
		json.NewEncoder(w).Encode(map[string]any{"ticks": page, "success": 1})
	}))

	// 97 is already imported, so only the three newer ticks come back.
	ticks, err := client.GetTicks(context.Background(), "user@example.org", "key", 97)
	if err != nil {
		t.Fatalf("GetTicks failed: %v", err)
	}
	want := []int64{100, 99, 98}
	if len(ticks) != len(want) {
		t.Fatalf("got %d ticks; want %d", len(ticks), len(want))
	}
	for i, id := range want {
		if ticks[i].TickID != id {
			t.Errorf("ticks[%d].TickID = %d; want %d", i, ticks[i].TickID, id)
		}
	}
}

func TestGetTicksUpstreamFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ticks": []Tick{}, "success": 0})
	}))
	if _, err := client.GetTicks(context.Background(), "user@example.org", "key", 0); !errors.Is(err, ErrUpstream) {
		t.Errorf("GetTicks error = %v; want ErrUpstream", err)
	}
}

func TestGetTicksBadStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	if _, err := client.GetTicks(context.Background(), "user@example.org", "key", 0); !errors.Is(err, ErrUpstream) {
		t.Errorf("GetTicks error = %v; want ErrUpstream", err)
	}
}

func TestGetRoutesBatching(t *testing.T) {
	const numRoutes = 450
	var requests [][]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get-routes" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		ids := r.URL.Query().Get("routeIds")
		batch := []string{}
		if ids != "" {
			batch = strings.Split(ids, ",")
		}
		requests = append(requests, batch)
		routes := make([]Route, 0, len(batch))
		for _, idStr := range batch {
			id, _ := strconv.ParseInt(idStr, 10, 64)
			routes = append(routes, Route{ID: id, Name: fmt.Sprintf("Route %d", id)})
		}
		json.NewEncoder(w).Encode(map[string]any{"routes": routes, "success": 1})
	}))

	ids := make([]int64, numRoutes)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	routes, err := client.GetRoutes(context.Background(), "key", ids)
	if err != nil {
		t.Fatalf("GetRoutes failed: %v", err)
	}
	if len(routes) != numRoutes {
		t.Fatalf("got %d routes; want %d", len(routes), numRoutes)
	}
	if len(requests) != 3 {
		t.Fatalf("made %d requests; want 3", len(requests))
	}
	if len(requests[0]) != 200 || len(requests[1]) != 200 || len(requests[2]) != 50 {
		t.Errorf("batch sizes = %d, %d, %d; want 200, 200, 50", len(requests[0]), len(requests[1]), len(requests[2]))
	}
	// Results keep request order.
	for i, route := range routes {
		if route.ID != int64(i+1) {
			t.Fatalf("routes[%d].ID = %d; want %d", i, route.ID, i+1)
		}
	}
}

func TestGetRoutesEmpty(t *testing.T) {
	client := NewClient("http://127.0.0.1:0")
	routes, err := client.GetRoutes(context.Background(), "key", nil)
	if err != nil {
		t.Fatalf("GetRoutes(nil) failed: %v", err)
	}
	if len(routes) != 0 {
		t.Errorf("got %d routes; want 0", len(routes))
	}
}

func TestIntOrStrUnmarshal(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{`3`, 3},
		{`"4"`, 4},
		{`""`, 0},
		{`null`, 0},
	}
	for _, c := range cases {
		var v IntOrStr
		if err := json.Unmarshal([]byte(c.in), &v); err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", c.in, err)
			continue
		}
		if int(v) != c.want {
			t.Errorf("Unmarshal(%s) = %d; want %d", c.in, int(v), c.want)
		}
	}
	var v IntOrStr
	if err := json.Unmarshal([]byte(`"abc"`), &v); err == nil {
		t.Error("Unmarshal(abc) unexpectedly succeeded")
	}
}
