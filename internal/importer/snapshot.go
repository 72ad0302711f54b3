package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"ticklog/internal/models"
	"ticklog/internal/mpapi"
)

// SnapshotFile is an offline export of raw API records, as dropped into
// the watch directory. Replaying one is idempotent: ticks already on their
// route docs are skipped.
type SnapshotFile struct {
	User   string        `json:"user"`
	Ticks  []mpapi.Tick  `json:"ticks"`
	Routes []mpapi.Route `json:"routes"`
}

// ImportSnapshot applies a snapshot file without touching the network.
// Routes that have no stored doc must be present in the file.
func (im *Importer) ImportSnapshot(ctx context.Context, path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap SnapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if snap.User == "" {
		return nil, fmt.Errorf("snapshot %s missing user", path)
	}

	if err := im.lockUser(snap.User); err != nil {
		return nil, err
	}
	defer im.unlockUser(snap.User)

	user, err := im.loadUser(ctx, snap.User)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]mpapi.Route, len(snap.Routes))
	for _, route := range snap.Routes {
		byID[route.ID] = route
	}
	fetchRoutes := func(ids []int64) ([]mpapi.Route, error) {
		routes := make([]mpapi.Route, 0, len(ids))
		for _, id := range ids {
			route, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("snapshot %s missing route %d", path, id)
			}
			routes = append(routes, route)
		}
		return routes, nil
	}
	return im.apply(ctx, snap.User, user, snap.Ticks, fetchRoutes, false)
}

// ExportSnapshot collects the user's live ticks and routes back into the
// raw API shape so they can be re-imported elsewhere.
func (im *Importer) ExportSnapshot(ctx context.Context, userID string) (*SnapshotFile, error) {
	routes, err := im.loadAllRoutes(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap := &SnapshotFile{User: userID}
	for routeID, route := range routes {
		snap.Routes = append(snap.Routes, mpapi.Route{
			ID:        int64(routeID),
			Name:      route.Name,
			Type:      apiRouteType(route.Type),
			Rating:    route.Grade,
			Pitches:   mpapi.IntOrStr(route.Pitches),
			Location:  route.Location,
			Latitude:  route.Lat,
			Longitude: route.Long,
		})
		for tickID, tick := range route.Ticks {
			snap.Ticks = append(snap.Ticks, mpapi.Tick{
				RouteID:    int64(routeID),
				Date:       tick.Date[:4] + "-" + tick.Date[4:6] + "-" + tick.Date[6:],
				Pitches:    tick.Pitches,
				Notes:      tick.Notes,
				Style:      apiStyle(tick.Style),
				LeadStyle:  apiLeadStyle(tick.Style),
				TickID:     int64(tickID),
				UserStars:  tick.Stars,
				UserRating: tick.Grade,
			})
		}
	}
	return snap, nil
}

// apiRouteType inverts normalize.RouteType's mapping.
func apiRouteType(t models.RouteType) string {
	if t == models.TopRopeRoute {
		return "TR"
	}
	return t.String()
}

func apiStyle(style models.TickStyle) string {
	switch style {
	case models.Solo:
		return "Solo"
	case models.TopRope:
		return "TR"
	case models.Follow:
		return "Follow"
	case models.Lead, models.LeadOnsight, models.LeadFlash, models.LeadRedpoint,
		models.LeadPinkpoint, models.LeadFellHung:
		return "Lead"
	case models.Send:
		return "Send"
	case models.Flash:
		return "Flash"
	case models.Attempt:
		return "Attempt"
	default:
		return ""
	}
}

func apiLeadStyle(style models.TickStyle) string {
	switch style {
	case models.LeadOnsight:
		return "Onsight"
	case models.LeadFlash:
		return "Flash"
	case models.LeadRedpoint:
		return "Redpoint"
	case models.LeadPinkpoint:
		return "Pinkpoint"
	case models.LeadFellHung:
		return "Fell/Hung"
	default:
		return ""
	}
}
