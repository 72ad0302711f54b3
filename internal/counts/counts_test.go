package counts

import (
	"fmt"
	"reflect"
	"testing"

	"ticklog/internal/models"
)

func newRoute(name string, pitches int) *models.Route {
	return &models.Route{
		Name:     name,
		Type:     models.Sport,
		Location: []string{"Colorado", "Boulder Canyon"},
		Lat:      40.0,
		Long:     -105.4,
		Grade:    "5.10a",
		Pitches:  pitches,
		Ticks:    map[models.TickID]models.Tick{},
	}
}

// addTicks puts the ticks on the route and returns the delta for Apply.
func addTicks(route *models.Route, ticks map[models.TickID]models.Tick) map[models.TickID]models.Tick {
	for id, tick := range ticks {
		route.Ticks[id] = tick
	}
	return ticks
}

// removeTicks takes the ticks off the route and returns the delta.
func removeTicks(route *models.Route, ids ...models.TickID) map[models.TickID]models.Tick {
	removed := map[models.TickID]models.Tick{}
	for _, id := range ids {
		removed[id] = route.Ticks[id]
		delete(route.Ticks, id)
	}
	return removed
}

func TestApplyAdd(t *testing.T) {
	route := newRoute("Cussin' Crack", 2)
	routes := map[models.RouteID]*models.Route{10: route}
	delta := addTicks(route, map[models.TickID]models.Tick{
		// 20200113 is a Monday, 20200115 a Wednesday.
		1: {Date: "20200113", Style: models.LeadOnsight, Pitches: 2},
		2: {Date: "20200115", Style: models.TopRope, Pitches: 1},
	})

	c := models.NewCounts()
	Apply(c, map[models.RouteID]map[models.TickID]models.Tick{10: delta}, routes, false)

	want := models.NewCounts()
	want.DateFirstTicks = map[string]int{"20200113": 1}
	want.DatePitches = map[string]int{"20200113": 2, "20200115": 1}
	want.DateTicks = map[string]int{"20200113": 1, "20200115": 1}
	want.DayOfWeekPitches = map[int]int{1: 2, 3: 1}
	want.DayOfWeekTicks = map[int]int{1: 1, 3: 1}
	want.GradeCleanTicks = map[string]int{"5.10a": 1}
	want.GradeTicks = map[string]int{"5.10a": 2}
	want.LatLongTicks = map[string]int{"40.0,-105.4": 2}
	want.MonthGradeTicks = map[string]int{"202001|5.10a": 2}
	want.PitchesTicks = map[int]int{1: 1, 2: 1}
	want.RegionTicks = map[string]int{"Colorado": 2}
	want.RouteTicks = map[string]int{"10|Cussin' Crack": 2}
	want.RouteTypeTicks = map[models.RouteType]int{models.Sport: 2}
	want.TickStyleTicks = map[models.TickStyle]int{models.LeadOnsight: 1, models.TopRope: 1}

	if !reflect.DeepEqual(c, want) {
		t.Errorf("counts = %+v;\nwant %+v", c, want)
	}
}

func TestApplyAddThenRemoveIsZeroSum(t *testing.T) {
	route := newRoute("Empire of the Fenceless", 0)
	routes := map[models.RouteID]*models.Route{10: route}
	ticks := map[models.TickID]models.Tick{
		1: {Date: "20200113", Style: models.LeadRedpoint, Pitches: 1},
		2: {Date: "20200114", Style: models.Attempt, Pitches: 3},
	}

	c := models.NewCounts()
	Apply(c, map[models.RouteID]map[models.TickID]models.Tick{10: addTicks(route, ticks)}, routes, false)
	Apply(c, map[models.RouteID]map[models.TickID]models.Tick{10: removeTicks(route, 1, 2)}, routes, true)

	if want := models.NewCounts(); !reflect.DeepEqual(c, want) {
		t.Errorf("counts after add+remove = %+v; want empty", c)
	}
}

func TestApplyIncrementalMatchesRebuild(t *testing.T) {
	routeA := newRoute("A", 3)
	routeB := newRoute("B", 0)
	routeB.Grade = "V4"
	routeB.Type = models.Boulder
	routeB.Location = []string{"International", "Europe", "Spain", "Albarracin"}
	routes := map[models.RouteID]*models.Route{1: routeA, 2: routeB}

	c := models.NewCounts()
	batch1 := map[models.RouteID]map[models.TickID]models.Tick{
		1: addTicks(routeA, map[models.TickID]models.Tick{
			11: {Date: "20190601", Style: models.LeadFellHung, Pitches: 5},
			12: {Date: "20190602", Style: models.Lead, Pitches: 3},
		}),
	}
	Apply(c, batch1, routes, false)

	batch2 := map[models.RouteID]map[models.TickID]models.Tick{
		1: addTicks(routeA, map[models.TickID]models.Tick{
			13: {Date: "20190530", Style: models.LeadOnsight, Pitches: 3},
		}),
		2: addTicks(routeB, map[models.TickID]models.Tick{
			21: {Date: "20190704", Style: models.Send, Pitches: 1},
			22: {Date: "20190705", Style: models.Attempt, Pitches: 1},
		}),
	}
	Apply(c, batch2, routes, false)

	if rebuilt := Rebuild(routes); !reflect.DeepEqual(c, rebuilt) {
		t.Errorf("incremental = %+v;\nrebuild = %+v", c, rebuilt)
	}
}

func TestApplyFirstTickMoves(t *testing.T) {
	route := newRoute("The Naked Edge", 6)
	routes := map[models.RouteID]*models.Route{10: route}

	c := models.NewCounts()
	Apply(c, map[models.RouteID]map[models.TickID]models.Tick{
		10: addTicks(route, map[models.TickID]models.Tick{
			1: {Date: "20200601", Style: models.Follow, Pitches: 6},
		}),
	}, routes, false)
	if !reflect.DeepEqual(c.DateFirstTicks, map[string]int{"20200601": 1}) {
		t.Fatalf("dateFirstTicks = %v", c.DateFirstTicks)
	}

	// A better tick takes over as the route's first tick.
	Apply(c, map[models.RouteID]map[models.TickID]models.Tick{
		10: addTicks(route, map[models.TickID]models.Tick{
			2: {Date: "20200615", Style: models.LeadOnsight, Pitches: 6},
		}),
	}, routes, false)
	if !reflect.DeepEqual(c.DateFirstTicks, map[string]int{"20200615": 1}) {
		t.Errorf("dateFirstTicks = %v; want the onsight's date", c.DateFirstTicks)
	}

	// Removing it hands the slot back.
	Apply(c, map[models.RouteID]map[models.TickID]models.Tick{
		10: removeTicks(route, 2),
	}, routes, true)
	if !reflect.DeepEqual(c.DateFirstTicks, map[string]int{"20200601": 1}) {
		t.Errorf("dateFirstTicks = %v; want the follow's date", c.DateFirstTicks)
	}
}

func TestApplyPitchCap(t *testing.T) {
	route := newRoute("Short One", 1)
	routes := map[models.RouteID]*models.Route{10: route}

	c := models.NewCounts()
	Apply(c, map[models.RouteID]map[models.TickID]models.Tick{
		10: addTicks(route, map[models.TickID]models.Tick{
			// Claims 4 pitches on a 1-pitch route.
			1: {Date: "20200113", Style: models.Lead, Pitches: 4},
		}),
	}, routes, false)

	if !reflect.DeepEqual(c.PitchesTicks, map[int]int{1: 1}) {
		t.Errorf("pitchesTicks = %v; want capped to 1", c.PitchesTicks)
	}
	if !reflect.DeepEqual(c.DatePitches, map[string]int{"20200113": 1}) {
		t.Errorf("datePitches = %v; want capped to 1", c.DatePitches)
	}
}

func TestApplyTopRoutesEviction(t *testing.T) {
	routes := map[models.RouteID]*models.Route{}
	routeTicks := map[models.RouteID]map[models.TickID]models.Tick{}
	var nextTickID models.TickID = 1
	// Route i gets i+1 ticks, so route 0 has the fewest.
	for i := 0; i <= models.NumTopRoutes; i++ {
		routeID := models.RouteID(100 + i)
		route := newRoute(fmt.Sprintf("Route %d", i), 1)
		routes[routeID] = route
		ticks := map[models.TickID]models.Tick{}
		for j := 0; j <= i; j++ {
			ticks[nextTickID] = models.Tick{Date: "20200113", Style: models.Lead, Pitches: 1}
			nextTickID++
		}
		routeTicks[routeID] = addTicks(route, ticks)
	}

	c := models.NewCounts()
	Apply(c, routeTicks, routes, false)

	if len(c.RouteTicks) != models.NumTopRoutes {
		t.Fatalf("len(routeTicks) = %d; want %d", len(c.RouteTicks), models.NumTopRoutes)
	}
	if _, ok := c.RouteTicks["100|Route 0"]; ok {
		t.Error("least-ticked route survived truncation")
	}

	// Deleting the busiest route's ticks frees slots, but the evicted
	// route only comes back via a full rebuild.
	busiest := models.RouteID(100 + models.NumTopRoutes)
	Apply(c, map[models.RouteID]map[models.TickID]models.Tick{
		busiest: removeTicks(routes[busiest], keys(routes[busiest].Ticks)...),
	}, routes, true)
	if _, ok := c.RouteTicks["100|Route 0"]; ok {
		t.Error("evicted route reappeared without a rebuild")
	}
	if len(c.RouteTicks) != models.NumTopRoutes-1 {
		t.Errorf("len(routeTicks) = %d; want %d", len(c.RouteTicks), models.NumTopRoutes-1)
	}

	rebuilt := Rebuild(routes)
	if _, ok := rebuilt.RouteTicks["100|Route 0"]; !ok {
		t.Error("rebuild did not restore the evicted route")
	}
}

func TestApplySkipsUnknownRoutes(t *testing.T) {
	c := models.NewCounts()
	Apply(c, map[models.RouteID]map[models.TickID]models.Tick{
		99: {1: {Date: "20200113", Style: models.Lead, Pitches: 1}},
	}, map[models.RouteID]*models.Route{}, false)
	if want := models.NewCounts(); !reflect.DeepEqual(c, want) {
		t.Errorf("counts = %+v; want empty", c)
	}
}

func TestIsStale(t *testing.T) {
	if IsStale(models.NewCounts()) {
		t.Error("fresh counts reported stale")
	}
	if !IsStale(nil) {
		t.Error("nil counts not reported stale")
	}
	old := models.NewCounts()
	old.Version = 0
	if !IsStale(old) {
		t.Error("version 0 not reported stale")
	}
}

func keys(m map[models.TickID]models.Tick) []models.TickID {
	out := make([]models.TickID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}
