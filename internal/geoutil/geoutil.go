// Package geoutil buckets coordinates for map-density stats.
package geoutil

import "strconv"

// LatLongBucket returns a "lat,long" key with both coordinates rounded to
// one decimal place, e.g. "39.9,-105.0".
func LatLongBucket(lat, long float64) string {
	return strconv.FormatFloat(lat, 'f', 1, 64) + "," + strconv.FormatFloat(long, 'f', 1, 64)
}
