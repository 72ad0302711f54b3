// Package importer orchestrates imports: fetch ticks from the Mountain
// Project API, normalize them, fold them into route docs, update the area
// index and aggregate counts, and commit everything in one write batch.
// One import runs at a time per user.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ticklog/internal/areas"
	"ticklog/internal/counts"
	"ticklog/internal/metrics"
	"ticklog/internal/models"
	"ticklog/internal/mpapi"
	"ticklog/internal/normalize"
	"ticklog/internal/store"
)

// ErrBusy is returned when an import is already running for the user.
var ErrBusy = errors.New("import already running for user")

// Credentials authenticate a user against the Mountain Project API.
type Credentials struct {
	Email string `json:"email"`
	Key   string `json:"key"`
}

// Summary describes one completed import run.
type Summary struct {
	RunID     string `json:"runId"`
	User      string `json:"user"`
	NewTicks  int    `json:"newTicks"`
	NewRoutes int    `json:"newRoutes"`
	Rebuilt   bool   `json:"rebuilt"`
	Overwrite bool   `json:"overwrite"`
}

// Importer runs imports against one document store.
type Importer struct {
	store         *store.Store
	client        *mpapi.Client
	metrics       *metrics.Metrics
	snapshotBatch int

	mu      sync.Mutex
	running map[string]bool
}

// New creates an Importer. snapshotBatch bounds the number of raw records
// per audit snapshot doc; values below 1 fall back to 100.
func New(st *store.Store, client *mpapi.Client, m *metrics.Metrics, snapshotBatch int) *Importer {
	if snapshotBatch < 1 {
		snapshotBatch = 100
	}
	return &Importer{
		store:         st,
		client:        client,
		metrics:       m,
		snapshotBatch: snapshotBatch,
		running:       map[string]bool{},
	}
}

func (im *Importer) lockUser(userID string) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.running[userID] {
		return fmt.Errorf("%s: %w", userID, ErrBusy)
	}
	im.running[userID] = true
	return nil
}

func (im *Importer) unlockUser(userID string) {
	im.mu.Lock()
	delete(im.running, userID)
	im.mu.Unlock()
}

// Import fetches the user's ticks above their high-water mark and applies
// them incrementally.
func (im *Importer) Import(ctx context.Context, userID string, creds Credentials) (*Summary, error) {
	return im.run(ctx, userID, creds, false)
}

// Reimport refetches everything and rebuilds the user's documents from
// scratch, dropping local state such as soft-deleted ticks.
func (im *Importer) Reimport(ctx context.Context, userID string, creds Credentials) (*Summary, error) {
	return im.run(ctx, userID, creds, true)
}

func (im *Importer) run(ctx context.Context, userID string, creds Credentials, overwrite bool) (*Summary, error) {
	if err := im.lockUser(userID); err != nil {
		return nil, err
	}
	defer im.unlockUser(userID)

	user, err := im.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	minTickID := int64(user.MaxTickID)
	if overwrite {
		minTickID = 0
	}
	apiTicks, err := im.client.GetTicks(ctx, creds.Email, creds.Key, minTickID)
	if err != nil {
		return nil, err
	}
	fetchRoutes := func(ids []int64) ([]mpapi.Route, error) {
		return im.client.GetRoutes(ctx, creds.Key, ids)
	}
	return im.apply(ctx, userID, user, apiTicks, fetchRoutes, overwrite)
}

// apply is the shared tail of every import: normalize, update documents,
// commit one batch. fetchRoutes resolves routes that have no stored doc.
func (im *Importer) apply(ctx context.Context, userID string, user models.User, apiTicks []mpapi.Tick,
	fetchRoutes func(ids []int64) ([]mpapi.Route, error), overwrite bool) (*Summary, error) {
	runID := uuid.NewString()
	start := time.Now()

	// Normalize everything up front so a bad record aborts before any
	// state changes.
	newTicks := map[models.RouteID]map[models.TickID]models.Tick{}
	maxTickID := user.MaxTickID
	for _, apiTick := range apiTicks {
		tickID, routeID, tick, err := normalize.Tick(apiTick)
		if err != nil {
			return nil, fmt.Errorf("normalize: %w", err)
		}
		if newTicks[routeID] == nil {
			newTicks[routeID] = map[models.TickID]models.Tick{}
		}
		newTicks[routeID][tickID] = tick
		if tickID > maxTickID {
			maxTickID = tickID
		}
	}

	// Load the affected route docs; anything unknown is fetched.
	routes := map[models.RouteID]*models.Route{}
	var missing []int64
	for routeID := range newTicks {
		if overwrite {
			missing = append(missing, int64(routeID))
			continue
		}
		var route models.Route
		found, err := im.store.GetJSON(ctx, userID, routePath(routeID), &route)
		if err != nil {
			return nil, err
		}
		if found {
			routes[routeID] = &route
		} else {
			missing = append(missing, int64(routeID))
		}
	}
	if len(missing) > 0 {
		apiRoutes, err := fetchRoutes(missing)
		if err != nil {
			return nil, err
		}
		fetched := map[models.RouteID]*models.Route{}
		for _, apiRoute := range apiRoutes {
			routeID, route, err := normalize.Route(apiRoute)
			if err != nil {
				return nil, fmt.Errorf("normalize: %w", err)
			}
			fetched[routeID] = route
		}
		for _, id := range missing {
			route := fetched[models.RouteID(id)]
			if route == nil {
				return nil, fmt.Errorf("route %d not returned by api", id)
			}
			routes[models.RouteID(id)] = route
		}
	}

	// Drop ticks the route docs already carry (or that the user deleted)
	// so a replayed snapshot stays idempotent, then fold in the rest.
	numTicks := 0
	for routeID, delta := range newTicks {
		route := routes[routeID]
		for tickID := range delta {
			if _, ok := route.Ticks[tickID]; ok {
				delete(delta, tickID)
			} else if _, ok := route.DeletedTicks[tickID]; ok {
				delete(delta, tickID)
			}
		}
		if len(delta) == 0 {
			delete(newTicks, routeID)
			delete(routes, routeID)
			continue
		}
		if route.Ticks == nil {
			route.Ticks = map[models.TickID]models.Tick{}
		}
		for tickID, tick := range delta {
			route.Ticks[tickID] = tick
		}
		numTicks += len(delta)
	}

	var writes []store.Write

	// A full overwrite discards every stored route and area doc first;
	// docs for routes still ticked are rewritten below.
	existingRoutePaths, err := im.store.ListPaths(ctx, userID, "routes/")
	if err != nil {
		return nil, err
	}
	if overwrite {
		for _, p := range existingRoutePaths {
			writes = append(writes, store.Write{Path: p, Delete: true})
		}
		areaPaths, err := im.store.ListPaths(ctx, userID, "areas/")
		if err != nil {
			return nil, err
		}
		for _, p := range areaPaths {
			writes = append(writes, store.Write{Path: p, Delete: true})
		}
	}

	// Counts: incremental when possible, otherwise rebuilt from the full
	// route set.
	rebuilt := false
	var agg *models.Counts
	if !overwrite {
		var stored models.Counts
		found, err := im.store.GetJSON(ctx, userID, "counts", &stored)
		if err != nil {
			return nil, err
		}
		switch {
		case !found:
			// No aggregate yet: start a fresh doc at the current version
			// and fold the new ticks in. Only a found doc can be stale.
			agg = models.NewCounts()
			counts.Apply(agg, newTicks, routes, false)
		case !counts.IsStale(&stored):
			agg = &stored
			counts.Apply(agg, newTicks, routes, false)
		}
	}
	if agg == nil {
		all, err := im.loadAllRoutes(ctx, userID)
		if err != nil {
			return nil, err
		}
		for routeID, route := range routes {
			all[routeID] = route
		}
		if overwrite {
			all = routes
		}
		agg = counts.Rebuild(all)
		rebuilt = !overwrite
	}

	// Areas: merge the affected routes into the navigation tree and the
	// per-area summaries.
	var areaMap models.AreaMap
	if !overwrite {
		if _, err := im.store.GetJSON(ctx, userID, "areas/map", &areaMap); err != nil {
			return nil, err
		}
	}
	touched, err := areas.Build(routes, &areaMap, func(id string) (*models.Area, error) {
		if overwrite {
			return nil, nil
		}
		var area models.Area
		found, err := im.store.GetJSON(ctx, userID, areaPath(id), &area)
		if err != nil || !found {
			return nil, err
		}
		return &area, nil
	})
	if err != nil {
		return nil, err
	}

	// Bookkeeping.
	user.MaxTickID = maxTickID
	if overwrite {
		user.NumRoutes = len(routes)
		user.NumReimports++
	} else {
		user.NumRoutes = len(existingRoutePaths) + len(missing)
		user.NumImports++
	}
	user.LastImportTime = time.Now()

	for routeID, route := range routes {
		writes = append(writes, store.Write{Path: routePath(routeID), Doc: route})
	}
	if len(routes) > 0 {
		writes = append(writes, store.Write{Path: "areas/map", Doc: &areaMap})
		for id, area := range touched {
			writes = append(writes, store.Write{Path: areaPath(id), Doc: area})
		}
	}
	writes = append(writes, store.Write{Path: "counts", Doc: agg})
	writes = append(writes, store.Write{Path: "user", Doc: &user})
	writes = append(writes, im.snapshotWrites(runID, apiTicks)...)

	if err := im.store.WriteBatch(ctx, userID, writes); err != nil {
		return nil, err
	}

	if im.metrics != nil {
		im.metrics.RecordImport(numTicks, len(missing))
	}
	log.Printf("import user=%s run=%s ticks=%d routes=%d rebuilt=%t overwrite=%t duration_ms=%d",
		userID, runID, numTicks, len(missing), rebuilt, overwrite, time.Since(start).Milliseconds())

	return &Summary{
		RunID:     runID,
		User:      userID,
		NewTicks:  numTicks,
		NewRoutes: len(missing),
		Rebuilt:   rebuilt,
		Overwrite: overwrite,
	}, nil
}

// snapshotWrites chunks the raw API ticks into audit docs under the run ID
// so an import can be replayed or debugged later.
func (im *Importer) snapshotWrites(runID string, apiTicks []mpapi.Tick) []store.Write {
	var writes []store.Write
	for start, n := 0, 0; start < len(apiTicks); start, n = start+im.snapshotBatch, n+1 {
		end := start + im.snapshotBatch
		if end > len(apiTicks) {
			end = len(apiTicks)
		}
		writes = append(writes, store.Write{
			Path: fmt.Sprintf("imports/%s/%d", runID, n),
			Doc:  map[string]any{"ticks": apiTicks[start:end]},
		})
	}
	return writes
}

// DeleteTick soft-deletes one tick: it moves to the route's DeletedTicks
// and its contribution is backed out of the aggregates.
func (im *Importer) DeleteTick(ctx context.Context, userID string, routeID models.RouteID, tickID models.TickID) error {
	if err := im.lockUser(userID); err != nil {
		return err
	}
	defer im.unlockUser(userID)

	var route models.Route
	found, err := im.store.GetJSON(ctx, userID, routePath(routeID), &route)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("route %d not found", routeID)
	}
	tick, ok := route.Ticks[tickID]
	if !ok {
		return fmt.Errorf("tick %d not found on route %d", tickID, routeID)
	}
	delete(route.Ticks, tickID)
	if route.DeletedTicks == nil {
		route.DeletedTicks = map[models.TickID]models.Tick{}
	}
	route.DeletedTicks[tickID] = tick

	routes := map[models.RouteID]*models.Route{routeID: &route}
	var stored models.Counts
	foundCounts, err := im.store.GetJSON(ctx, userID, "counts", &stored)
	if err != nil {
		return err
	}
	var agg *models.Counts
	if foundCounts && !counts.IsStale(&stored) {
		agg = &stored
		counts.Apply(agg, map[models.RouteID]map[models.TickID]models.Tick{
			routeID: {tickID: tick},
		}, routes, true)
	} else {
		all, err := im.loadAllRoutes(ctx, userID)
		if err != nil {
			return err
		}
		all[routeID] = &route
		agg = counts.Rebuild(all)
	}

	err = im.store.WriteBatch(ctx, userID, []store.Write{
		{Path: routePath(routeID), Doc: &route},
		{Path: "counts", Doc: agg},
	})
	if err != nil {
		return err
	}
	log.Printf("delete_tick user=%s route=%d tick=%d", userID, routeID, tickID)
	return nil
}

// RebuildCounts recomputes the aggregates from the stored route docs.
func (im *Importer) RebuildCounts(ctx context.Context, userID string) error {
	if err := im.lockUser(userID); err != nil {
		return err
	}
	defer im.unlockUser(userID)

	all, err := im.loadAllRoutes(ctx, userID)
	if err != nil {
		return err
	}
	agg := counts.Rebuild(all)
	if err := im.store.WriteBatch(ctx, userID, []store.Write{{Path: "counts", Doc: agg}}); err != nil {
		return err
	}
	log.Printf("rebuild user=%s routes=%d", userID, len(all))
	return nil
}

func (im *Importer) loadUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	if _, err := im.store.GetJSON(ctx, userID, "user", &user); err != nil {
		return user, err
	}
	return user, nil
}

func (im *Importer) loadAllRoutes(ctx context.Context, userID string) (map[models.RouteID]*models.Route, error) {
	paths, err := im.store.ListPaths(ctx, userID, "routes/")
	if err != nil {
		return nil, err
	}
	routes := make(map[models.RouteID]*models.Route, len(paths))
	for _, p := range paths {
		id, err := strconv.ParseInt(strings.TrimPrefix(p, "routes/"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad route path %q: %w", p, err)
		}
		var route models.Route
		if _, err := im.store.GetJSON(ctx, userID, p, &route); err != nil {
			return nil, err
		}
		routes[models.RouteID(id)] = &route
	}
	return routes, nil
}

func routePath(id models.RouteID) string {
	return "routes/" + strconv.FormatInt(int64(id), 10)
}

func areaPath(id string) string {
	return "areas/" + id
}
