package drought

import (
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/paulmach/orb"
)

// MaxLevel returns the highest DM category among the polygons containing p,
// or -1 when p is in none of them.
func MaxLevel(polygons []domain.DroughtPolygon, p orb.Point) int {
	level := -1
	for _, poly := range polygons {
		if poly.DM > level && poly.Contains(p) {
			level = poly.DM
		}
	}
	return level
}
