package food

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sharemeal/sharemeal-go/internal/store"
)

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// coordinates.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Filter narrows a listing query. Zero values mean "no constraint".
type Filter struct {
	// Center of the proximity search; both must be set together.
	Lat, Lng *float64
	// RadiusKm limits results to listings within this distance of the
	// center. Ignored without a center.
	RadiusKm float64

	// Case-insensitive substring matches.
	Title    string // against the listing title
	Location string // against the pickup address
	Item     string // against any entry of the items list

	// Mine returns the viewer's own listings in every status instead of
	// the public feed.
	Mine bool
}

func (f *Filter) hasCenter() bool {
	return f.Lat != nil && f.Lng != nil
}

// Apply filters and orders items for presentation at time now.
// The public feed carries only listings that are active and not yet
// expired; Mine shows the owner everything except nothing at all.
// With a center set, results come back nearest first.
func (f *Filter) Apply(items []*store.FoodItem, now time.Time) []*store.FoodItem {
	out := make([]*store.FoodItem, 0, len(items))
	for _, item := range items {
		if f.Mine {
			if item.Status == store.FoodStatusDeleted {
				continue
			}
		} else if EffectiveStatus(item, now) != store.FoodStatusActive {
			continue
		}
		if !f.matchesText(item) {
			continue
		}
		if f.hasCenter() && f.RadiusKm > 0 {
			if Haversine(*f.Lat, *f.Lng, item.PickupLat, item.PickupLng) > f.RadiusKm {
				continue
			}
		}
		out = append(out, item)
	}

	if f.hasCenter() {
		sort.SliceStable(out, func(i, j int) bool {
			di := Haversine(*f.Lat, *f.Lng, out[i].PickupLat, out[i].PickupLng)
			dj := Haversine(*f.Lat, *f.Lng, out[j].PickupLat, out[j].PickupLng)
			return di < dj
		})
	} else {
		// Newest first when no proximity ordering applies.
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt > out[j].CreatedAt
		})
	}
	return out
}

func (f *Filter) matchesText(item *store.FoodItem) bool {
	if f.Title != "" && !containsFold(item.Title, f.Title) {
		return false
	}
	if f.Location != "" && !containsFold(item.PickupAddress, f.Location) {
		return false
	}
	if f.Item != "" {
		found := false
		for _, entry := range item.Items {
			if containsFold(entry, f.Item) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
