package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Wildfire is the persistent record of one tracked fire incident.
type Wildfire struct {
	EventKey         string     `json:"event_key"`
	ArcGISID         string     `json:"arcgis_id"`
	EpisodeKey       string     `json:"episode_key,omitempty"`
	Location         Location   `json:"location"`
	AcresBurned      int64      `json:"acres_burned"`
	Severity         int        `json:"severity"`
	StartDate        time.Time  `json:"start_date"`
	LastModified     time.Time  `json:"last_modified"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	Cost             *float64   `json:"cost,omitempty"`
	Description      string     `json:"description"`
	FuelSource       string     `json:"fuel_source"`
	Active           bool       `json:"active"`
	PercentContained *float64   `json:"percent_contained,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Drought is the persistent record of one county drought episode.
type Drought struct {
	EventKey    string     `json:"event_key"`
	EpisodeKey  string     `json:"episode_key,omitempty"`
	Location    Location   `json:"location"`
	Severity    string     `json:"severity"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Description string     `json:"description"`
	IsActive    bool       `json:"is_active"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DroughtKey returns the event key of a county drought.
func DroughtKey(countyFIPS, stateFIPS string) string {
	return fmt.Sprintf("DRT-%s-%s", countyFIPS, stateFIPS)
}

// DroughtSeverity renders a DM category as "D0".."D4".
func DroughtSeverity(dm int) string {
	if dm < 0 || dm > 4 {
		return "Unknown"
	}
	return fmt.Sprintf("D%d", dm)
}

// DroughtLevel parses "D0".."D4" back to its DM category, or -1.
func DroughtLevel(severity string) int {
	if len(severity) != 2 || severity[0] != 'D' || severity[1] < '0' || severity[1] > '4' {
		return -1
	}
	return int(severity[1] - '0')
}

// DroughtPolygon is one USDM category polygon. A point is inside when it is
// inside an exterior ring and outside every hole.
type DroughtPolygon struct {
	DM        int
	Exteriors []orb.Ring
	Holes     []orb.Ring
	// Bound covers every exterior. A zero Bound disables the bound check.
	Bound orb.Bound
}

// NewDroughtPolygon repairs the rings once and records their bound. It
// returns false when no exterior ring survives repair.
func NewDroughtPolygon(dm int, exteriors, holes []orb.Ring) (DroughtPolygon, bool) {
	ext := RepairShape(exteriors)
	if len(ext) == 0 {
		return DroughtPolygon{}, false
	}
	bound := ext[0].Bound()
	for _, r := range ext[1:] {
		bound = bound.Union(r.Bound())
	}
	return DroughtPolygon{DM: dm, Exteriors: ext, Holes: RepairShape(holes), Bound: bound}, true
}

// Contains reports whether p falls inside the polygon.
func (d DroughtPolygon) Contains(p orb.Point) bool {
	if d.Bound != (orb.Bound{}) && !d.Bound.Contains(p) {
		return false
	}
	return ShapeContains(d.Exteriors, p) && !ShapeContains(d.Holes, p)
}

// County is reference data for one U.S. county.
type County struct {
	FIPS      string     `json:"fips" validate:"required,len=3,numeric"`
	StateFIPS string     `json:"state_fips" validate:"required,len=2,numeric"`
	StateAbbr string     `json:"state_abbr" validate:"required,len=2,alpha"`
	Name      string     `json:"name" validate:"required"`
	Centroid  Coordinate `json:"centroid"`
}

// ValidateCounty checks a reference county before it is stored.
func ValidateCounty(c County) error {
	if err := validate.Struct(c); err != nil {
		return Validationf("county %s%s: %v", c.StateFIPS, c.FIPS, err)
	}
	return nil
}
