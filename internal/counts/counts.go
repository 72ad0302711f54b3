// Package counts maintains the per-user aggregate stats document. Imports
// and deletions flow through Apply as small deltas so the aggregates stay
// current without rescanning every route; Rebuild recomputes the document
// from scratch when the stored format is stale.
package counts

import (
	"sort"
	"strconv"

	"ticklog/internal/areas"
	"ticklog/internal/dateutil"
	"ticklog/internal/geoutil"
	"ticklog/internal/models"
)

// add applies a signed delta to a bucket and prunes entries that drop to
// or below zero. A zero delta on an absent key is a no-op.
func add[K comparable](m map[K]int, key K, delta int) {
	n := m[key] + delta
	if n <= 0 {
		delete(m, key)
		return
	}
	m[key] = n
}

// firstTickDate returns the date of the best tick in the set per
// models.CompareTicks, or "" when the set is empty. The comparator is a
// total order, so the result does not depend on map iteration order.
func firstTickDate(ticks map[models.TickID]models.Tick, routePitches int) string {
	var bestID models.TickID
	var best models.Tick
	found := false
	for id, tick := range ticks {
		if !found || models.CompareTicks(id, tick, bestID, best, routePitches) < 0 {
			bestID, best, found = id, tick, true
		}
	}
	if !found {
		return ""
	}
	return best.Date
}

// Apply folds a tick delta into the aggregates. routeTicks holds the ticks
// being added (or, with remove set, the ticks just removed), grouped by
// route; routes holds the corresponding route docs in their post-delta
// state, i.e. with added ticks already present and removed ticks already
// gone. Routes missing from routes are skipped.
func Apply(c *models.Counts, routeTicks map[models.RouteID]map[models.TickID]models.Tick,
	routes map[models.RouteID]*models.Route, remove bool) {
	for routeID, ticks := range routeTicks {
		route := routes[routeID]
		if route == nil {
			continue
		}

		// Reconstruct the pre-delta tick set to detect a change in the
		// route's first tick.
		oldTicks := make(map[models.TickID]models.Tick, len(route.Ticks)+len(ticks))
		for id, tick := range route.Ticks {
			oldTicks[id] = tick
		}
		if remove {
			for id, tick := range ticks {
				oldTicks[id] = tick
			}
		} else {
			for id := range ticks {
				delete(oldTicks, id)
			}
		}
		oldFirst := firstTickDate(oldTicks, route.Pitches)
		newFirst := firstTickDate(route.Ticks, route.Pitches)
		if oldFirst != newFirst {
			if newFirst != "" {
				add(c.DateFirstTicks, newFirst, 1)
			}
			if oldFirst != "" {
				add(c.DateFirstTicks, oldFirst, -1)
			}
		}

		// The per-route total is authoritative rather than incremental.
		routeKey := strconv.FormatInt(int64(routeID), 10) + "|" + route.Name
		c.RouteTicks[routeKey] = len(route.Ticks)

		latLong := geoutil.LatLongBucket(route.Lat, route.Long)
		region := areas.Region(route.Location)
		for _, tick := range ticks {
			sign := 1
			if remove {
				sign = -1
			}
			pitches := models.EffectivePitches(tick, route.Pitches)

			add(c.DatePitches, tick.Date, sign*pitches)
			add(c.DateTicks, tick.Date, sign)
			if day, err := dateutil.Parse(tick.Date); err == nil {
				dow := dateutil.DayOfWeek(day)
				add(c.DayOfWeekPitches, dow, sign*pitches)
				add(c.DayOfWeekTicks, dow, sign)
			}
			if models.IsCleanStyle(tick.Style) {
				add(c.GradeCleanTicks, route.Grade, sign)
			}
			add(c.GradeTicks, route.Grade, sign)
			add(c.LatLongTicks, latLong, sign)
			add(c.MonthGradeTicks, dateutil.Month(tick.Date)+"|"+route.Grade, sign)
			add(c.PitchesTicks, pitches, sign)
			add(c.RegionTicks, region, sign)
			add(c.RouteTypeTicks, route.Type, sign)
			add(c.TickStyleTicks, tick.Style, sign)
		}
	}

	truncateRouteTicks(c)
}

// truncateRouteTicks keeps only the NumTopRoutes most-ticked routes.
// Routes pushed out of the window stay out until a full rebuild, even if
// later deletions would let them back in.
func truncateRouteTicks(c *models.Counts) {
	type entry struct {
		key string
		n   int
	}
	entries := make([]entry, 0, len(c.RouteTicks))
	for key, n := range c.RouteTicks {
		if n > 0 {
			entries = append(entries, entry{key, n})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].n != entries[j].n {
			return entries[i].n > entries[j].n
		}
		return entries[i].key < entries[j].key
	})
	if len(entries) > models.NumTopRoutes {
		entries = entries[:models.NumTopRoutes]
	}
	c.RouteTicks = make(map[string]int, len(entries))
	for _, e := range entries {
		c.RouteTicks[e.key] = e.n
	}
}

// Rebuild recomputes the aggregates from the full set of route docs. The
// result matches what repeated incremental Apply calls would have
// produced, modulo routes evicted from the top-routes window.
func Rebuild(routes map[models.RouteID]*models.Route) *models.Counts {
	c := models.NewCounts()
	routeTicks := make(map[models.RouteID]map[models.TickID]models.Tick, len(routes))
	for routeID, route := range routes {
		if len(route.Ticks) == 0 {
			continue
		}
		routeTicks[routeID] = route.Ticks
	}
	Apply(c, routeTicks, routes, false)
	return c
}

// IsStale reports whether a stored counts doc predates the current format
// and needs a rebuild. Docs written before versioning decode with a zero
// version.
func IsStale(c *models.Counts) bool {
	return c == nil || c.Version < models.CountsVersion
}
