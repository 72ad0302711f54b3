// Package models defines the documents persisted for each user: routes with
// their embedded ticks, aggregate counts, the area tree, and import
// bookkeeping.
package models

import "time"

// TickID identifies a single tick (an ascent logged by the user).
type TickID int64

// RouteID identifies a climbing route.
type RouteID int64

// TickStyle describes how a route was climbed.
type TickStyle int

const (
	Unknown TickStyle = iota
	Solo
	TopRope
	Follow
	Lead
	LeadOnsight
	LeadFlash
	LeadRedpoint
	LeadPinkpoint
	LeadFellHung
	Send
	Flash
	Attempt
)

var tickStyleNames = map[TickStyle]string{
	Unknown:       "Unknown",
	Solo:          "Solo",
	TopRope:       "Top-rope",
	Follow:        "Follow",
	Lead:          "Lead",
	LeadOnsight:   "Lead (Onsight)",
	LeadFlash:     "Lead (Flash)",
	LeadRedpoint:  "Lead (Redpoint)",
	LeadPinkpoint: "Lead (Pinkpoint)",
	LeadFellHung:  "Lead (Fell/Hung)",
	Send:          "Send",
	Flash:         "Flash",
	Attempt:       "Attempt",
}

func (s TickStyle) String() string {
	if name, ok := tickStyleNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsCleanStyle reports whether the style counts as a clean ascent.
func IsCleanStyle(s TickStyle) bool {
	switch s {
	case Solo, LeadOnsight, LeadFlash, LeadRedpoint, LeadPinkpoint, Send, Flash:
		return true
	}
	return false
}

// RouteType describes the discipline of a route.
type RouteType int

const (
	Other RouteType = iota
	Sport
	Trad
	Boulder
	Ice
	Alpine
	Mixed
	Snow
	Aid
	TopRopeRoute
)

var routeTypeNames = map[RouteType]string{
	Other:        "Other",
	Sport:        "Sport",
	Trad:         "Trad",
	Boulder:      "Boulder",
	Ice:          "Ice",
	Alpine:       "Alpine",
	Mixed:        "Mixed",
	Snow:         "Snow",
	Aid:          "Aid",
	TopRopeRoute: "Top-rope",
}

func (t RouteType) String() string {
	if name, ok := routeTypeNames[t]; ok {
		return name
	}
	return "Other"
}

// Tick is a single logged ascent of a route. Dates use "YYYYMMDD".
type Tick struct {
	Date    string    `json:"date"`
	Style   TickStyle `json:"style"`
	Pitches int       `json:"pitches"`
	Notes   string    `json:"notes,omitempty"`
	Stars   int       `json:"stars,omitempty"`
	Grade   string    `json:"grade,omitempty"`
}

// Route is a climbing route along with all of the user's ticks of it.
// Pitches is 0 when the pitch count is unknown. Deleted ticks are kept
// around so a later full re-import can be reconciled against them.
type Route struct {
	Name         string          `json:"name"`
	Type         RouteType       `json:"type"`
	Location     []string        `json:"location"`
	Lat          float64         `json:"lat"`
	Long         float64         `json:"long"`
	Grade        string          `json:"grade"`
	Pitches      int             `json:"pitches,omitempty"`
	Ticks        map[TickID]Tick `json:"ticks"`
	DeletedTicks map[TickID]Tick `json:"deletedTicks,omitempty"`
}

// RouteSummary is the per-route data stored on Area docs.
type RouteSummary struct {
	Name  string `json:"name"`
	Grade string `json:"grade"`
}

// Area holds summaries of the routes directly within one area.
type Area struct {
	Routes map[RouteID]RouteSummary `json:"routes"`
}

// AreaMap is a node in the area hierarchy. Leaf nodes that correspond to a
// stored Area doc carry its ID.
type AreaMap struct {
	Children map[string]*AreaMap `json:"children,omitempty"`
	AreaID   string              `json:"areaId,omitempty"`
}

// CountsVersion is the current aggregate format. Persisted docs with a
// lower (or missing) version are rebuilt from route docs.
const CountsVersion = 1

// NumTopRoutes bounds the routeTicks bucket in Counts.
const NumTopRoutes = 20

// Counts holds the user's aggregate climbing stats. Every bucket maps a key
// to the number of ticks (or pitches) that fall in it; entries at or below
// zero are pruned.
type Counts struct {
	Version          int               `json:"version"`
	DateFirstTicks   map[string]int    `json:"dateFirstTicks"`
	DatePitches      map[string]int    `json:"datePitches"`
	DateTicks        map[string]int    `json:"dateTicks"`
	DayOfWeekPitches map[int]int       `json:"dayOfWeekPitches"`
	DayOfWeekTicks   map[int]int       `json:"dayOfWeekTicks"`
	GradeCleanTicks  map[string]int    `json:"gradeCleanTicks"`
	GradeTicks       map[string]int    `json:"gradeTicks"`
	LatLongTicks     map[string]int    `json:"latLongTicks"`
	MonthGradeTicks  map[string]int    `json:"monthGradeTicks"`
	PitchesTicks     map[int]int       `json:"pitchesTicks"`
	RegionTicks      map[string]int    `json:"regionTicks"`
	RouteTicks       map[string]int    `json:"routeTicks"`
	RouteTypeTicks   map[RouteType]int `json:"routeTypeTicks"`
	TickStyleTicks   map[TickStyle]int `json:"tickStyleTicks"`
}

// NewCounts returns an empty Counts at the current version with all buckets
// allocated.
func NewCounts() *Counts {
	return &Counts{
		Version:          CountsVersion,
		DateFirstTicks:   map[string]int{},
		DatePitches:      map[string]int{},
		DateTicks:        map[string]int{},
		DayOfWeekPitches: map[int]int{},
		DayOfWeekTicks:   map[int]int{},
		GradeCleanTicks:  map[string]int{},
		GradeTicks:       map[string]int{},
		LatLongTicks:     map[string]int{},
		MonthGradeTicks:  map[string]int{},
		PitchesTicks:     map[int]int{},
		RegionTicks:      map[string]int{},
		RouteTicks:       map[string]int{},
		RouteTypeTicks:   map[RouteType]int{},
		TickStyleTicks:   map[TickStyle]int{},
	}
}

// User records per-user import bookkeeping. MaxTickID is the low-water mark
// for incremental imports: only ticks with higher IDs are fetched.
type User struct {
	MaxTickID      TickID    `json:"maxTickId"`
	NumRoutes      int       `json:"numRoutes"`
	NumImports     int       `json:"numImports"`
	NumReimports   int       `json:"numReimports"`
	LastImportTime time.Time `json:"lastImportTime,omitzero"`
}

// EffectivePitches returns the pitch count a tick contributes to stats:
// at least 1, and no more than the route's pitch count when that is known.
func EffectivePitches(t Tick, routePitches int) int {
	p := t.Pitches
	if p < 1 {
		p = 1
	}
	if routePitches > 0 && p > routePitches {
		p = routePitches
	}
	return p
}
