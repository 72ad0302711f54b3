package models

// styleQuality orders tick styles from most to least impressive. Lower is
// better. Solo, Flash, and Send climbs have no lead-style breakdown, so
// they share the top slot.
var styleQuality = map[TickStyle]int{
	Solo:          0,
	Flash:         0,
	Send:          0,
	LeadOnsight:   1,
	LeadFlash:     2,
	LeadRedpoint:  3,
	LeadPinkpoint: 4,
	Lead:          5,
	LeadFellHung:  6,
	Follow:        7,
	TopRope:       8,
	Attempt:       9,
	Unknown:       10,
}

// CompareTicks orders ticks from best to worst: more effective pitches
// first, then better style, then earlier date, then lower tick ID. The ID
// tiebreak makes the order total, so the "first" tick of a route is
// well-defined no matter how its ticks are iterated. Returns a negative
// number if a sorts before b, positive if after, never 0 for distinct IDs.
func CompareTicks(aID TickID, a Tick, bID TickID, b Tick, routePitches int) int {
	if ap, bp := EffectivePitches(a, routePitches), EffectivePitches(b, routePitches); ap != bp {
		return bp - ap
	}
	if aq, bq := styleQuality[a.Style], styleQuality[b.Style]; aq != bq {
		return aq - bq
	}
	if a.Date != b.Date {
		if a.Date < b.Date {
			return -1
		}
		return 1
	}
	if aID < bID {
		return -1
	}
	if aID > bID {
		return 1
	}
	return 0
}
