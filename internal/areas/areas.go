// Package areas maintains the hierarchical index of climbing areas: stable
// area IDs derived from location components, the navigation tree, and the
// per-area route summaries.
package areas

import (
	"strings"

	"ticklog/internal/models"
)

// UnknownRegion is the placeholder for weird or missing regions.
const UnknownRegion = "Unknown"

func escapeSegment(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '/':
			b.WriteString("%2f")
		case '|':
			b.WriteString("%7c")
		case '%':
			b.WriteString("%25")
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// MakeAreaID derives a stable document ID from location components, e.g.
// ["Colorado", "Boulder Canyon"] -> "Colorado|Boulder Canyon". Separator
// and escape characters inside components are percent-escaped, and the
// handful of names the document store reserves ("."/".." and dunder-
// wrapped IDs) are escaped too. The ID is reversible via URL unescaping.
func MakeAreaID(location []string) string {
	escaped := make([]string, len(location))
	for i, component := range location {
		escaped[i] = escapeSegment(component)
	}
	id := strings.Join(escaped, "|")

	switch {
	case id == ".":
		return "%2e"
	case id == "..":
		return "%2e%2e"
	case len(id) >= 4 && strings.HasPrefix(id, "__") && strings.HasSuffix(id, "__"):
		return "%5f%5f" + id[2:len(id)-2] + "%5f%5f"
	}
	return id
}

// AddAreaToMap records the area identified by id at the position named by
// its location components, creating intermediate nodes as needed. Existing
// nodes are never clobbered, so repeated adds are idempotent and the tree
// only grows.
func AddAreaToMap(id string, location []string, areaMap *models.AreaMap) {
	if len(location) == 0 {
		return
	}
	name := location[0]
	if areaMap.Children == nil {
		areaMap.Children = map[string]*models.AreaMap{}
	}
	child := areaMap.Children[name]
	if child == nil {
		child = &models.AreaMap{}
		areaMap.Children[name] = child
	}
	if len(location) == 1 {
		child.AreaID = id
		return
	}
	AddAreaToMap(id, location[1:], child)
}

// Region reduces a location to a coarse region, generally a U.S. state or
// a country. The area hierarchy is U.S.-centric: every state is top-level
// and everything else sits under "International", which mixes continents
// with Antarctica and Australia.
func Region(location []string) string {
	if len(location) == 0 || location[0] == "In Progress" {
		return UnknownRegion
	}
	if location[0] != "International" {
		return location[0]
	}
	if len(location) < 2 {
		return UnknownRegion
	}
	if location[1] == "Antarctica" || location[1] == "Australia" {
		return location[1]
	}
	if len(location) >= 3 {
		return location[2]
	}
	return location[1]
}

// Build folds routes into per-area route summaries and merges their
// locations into the navigation tree. Existing area docs are fetched
// through load (which returns nil for areas not yet stored) so summaries
// accumulate across imports. Returns every area doc that was touched,
// keyed by area ID.
func Build(routes map[models.RouteID]*models.Route, areaMap *models.AreaMap, load func(id string) (*models.Area, error)) (map[string]*models.Area, error) {
	touched := map[string]*models.Area{}
	for routeID, route := range routes {
		id := MakeAreaID(route.Location)
		area := touched[id]
		if area == nil {
			stored, err := load(id)
			if err != nil {
				return nil, err
			}
			if stored != nil {
				area = stored
			} else {
				area = &models.Area{}
			}
			if area.Routes == nil {
				area.Routes = map[models.RouteID]models.RouteSummary{}
			}
			touched[id] = area
			AddAreaToMap(id, route.Location, areaMap)
		}
		area.Routes[routeID] = models.RouteSummary{Name: route.Name, Grade: route.Grade}
	}
	return touched, nil
}
