// Package normalize converts raw Mountain Project API records into the
// canonical documents the rest of the system stores. Validation here is
// strict: a single bad record aborts the whole import rather than silently
// dropping data.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"ticklog/internal/models"
	"ticklog/internal/mpapi"
)

var apiDateRegexp = regexp.MustCompile(`^\d{4}-\d\d-\d\d$`)

// Style maps the API's style and leadStyle strings onto the TickStyle
// enum. Unrecognized lead styles fall back to plain Lead; unrecognized
// styles fall back to Unknown.
func Style(style, leadStyle string) models.TickStyle {
	switch style {
	case "Solo":
		return models.Solo
	case "TR":
		return models.TopRope
	case "Follow":
		return models.Follow
	case "Lead":
		switch leadStyle {
		case "Onsight":
			return models.LeadOnsight
		case "Flash":
			return models.LeadFlash
		case "Redpoint":
			return models.LeadRedpoint
		case "Pinkpoint":
			return models.LeadPinkpoint
		case "Fell/Hung":
			return models.LeadFellHung
		default:
			return models.Lead
		}
	case "Send":
		return models.Send
	case "Flash":
		return models.Flash
	case "Attempt":
		return models.Attempt
	default:
		return models.Unknown
	}
}

// RouteType maps the API's comma-separated type list onto a single
// RouteType, preferring the more specific disciplines.
func RouteType(apiType string) models.RouteType {
	words := map[string]bool{}
	for _, w := range strings.Split(apiType, ",") {
		words[strings.TrimSpace(w)] = true
	}
	switch {
	case words["Sport"]:
		return models.Sport
	case words["Trad"]:
		return models.Trad
	case words["Boulder"]:
		return models.Boulder
	case words["Ice"]:
		return models.Ice
	case words["Alpine"]:
		return models.Alpine
	case words["Mixed"]:
		return models.Mixed
	case words["Snow"]:
		return models.Snow
	case words["Aid"]:
		return models.Aid
	case words["TR"]:
		return models.TopRopeRoute
	default:
		return models.Other
	}
}

// Notes come back with literal backslash escapes baked into the text.
var notesReplacer = strings.NewReplacer(`\r\n`, "\n", `\n`, "\n", `\"`, `"`, `\'`, `'`)

// CleanNotes rewrites the API's escaped quotes and newlines.
func CleanNotes(notes string) string {
	return notesReplacer.Replace(notes)
}

// Tick validates and converts an API tick. The returned date uses the
// compact "YYYYMMDD" form.
func Tick(apiTick mpapi.Tick) (models.TickID, models.RouteID, models.Tick, error) {
	if apiTick.TickID == 0 {
		return 0, 0, models.Tick{}, fmt.Errorf("tick for route %d missing tick ID", apiTick.RouteID)
	}
	if apiTick.RouteID == 0 {
		return 0, 0, models.Tick{}, fmt.Errorf("tick %d missing route ID", apiTick.TickID)
	}
	if !apiDateRegexp.MatchString(apiTick.Date) {
		return 0, 0, models.Tick{}, fmt.Errorf("tick %d has invalid date %q", apiTick.TickID, apiTick.Date)
	}

	tick := models.Tick{
		Date:    strings.ReplaceAll(apiTick.Date, "-", ""),
		Style:   Style(apiTick.Style, apiTick.LeadStyle),
		Pitches: apiTick.Pitches,
		Notes:   CleanNotes(apiTick.Notes),
	}
	if tick.Pitches < 1 {
		tick.Pitches = 1
	}
	if apiTick.UserStars > 0 {
		tick.Stars = apiTick.UserStars
	}
	if apiTick.UserRating != "" {
		tick.Grade = apiTick.UserRating
	}
	return models.TickID(apiTick.TickID), models.RouteID(apiTick.RouteID), tick, nil
}

// Route validates and converts an API route. Ticks start empty.
func Route(apiRoute mpapi.Route) (models.RouteID, *models.Route, error) {
	if apiRoute.ID == 0 {
		return 0, nil, fmt.Errorf("route %q missing ID", apiRoute.Name)
	}
	if apiRoute.Name == "" {
		return 0, nil, fmt.Errorf("route %d missing name", apiRoute.ID)
	}
	if len(apiRoute.Location) == 0 {
		return 0, nil, fmt.Errorf("route %d missing location", apiRoute.ID)
	}

	route := &models.Route{
		Name:     apiRoute.Name,
		Type:     RouteType(apiRoute.Type),
		Location: apiRoute.Location,
		Lat:      apiRoute.Latitude,
		Long:     apiRoute.Longitude,
		Grade:    apiRoute.Rating,
		Ticks:    map[models.TickID]models.Tick{},
	}
	if int(apiRoute.Pitches) > 0 {
		route.Pitches = int(apiRoute.Pitches)
	}
	return models.RouteID(apiRoute.ID), route, nil
}
