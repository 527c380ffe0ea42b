package wildfire

import (
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/adapter/arcgis"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
)

// Severity maps an incident complexity label such as "Type 2 Incident" to
// its tier. Unrecognized labels are tier 3.
func Severity(complexity string) int {
	label := strings.ToLower(complexity)
	switch {
	case strings.Contains(label, "type 1"):
		return 1
	case strings.Contains(label, "type 2"):
		return 2
	default:
		return 3
	}
}

// Parse converts an incident into a new wildfire record. Missing discovery
// or modification times default to now.
func Parse(f arcgis.Feature, now time.Time) (domain.Wildfire, error) {
	p := f.Properties
	if p.UniqueFireIdentifier == "" {
		return domain.Wildfire{}, domain.Validationf("incident %d has no unique fire identifier", p.ObjectID)
	}

	start, ok := arcgis.EpochMillis(p.FireDiscoveryDateTime)
	if !ok {
		start = now
	}

	state, county := splitFIPS(p.POOFips)
	loc := domain.Location{StateFIPS: state, CountyFIPS: county}
	if p.InitialLatitude != nil && p.InitialLongitude != nil {
		loc.StartingPoint = &domain.Coordinate{Latitude: *p.InitialLatitude, Longitude: *p.InitialLongitude}
	}

	w := domain.Wildfire{
		EventKey:  p.UniqueFireIdentifier,
		ArcGISID:  strconv.FormatInt(p.ObjectID, 10),
		Location:  loc,
		StartDate: start,
		Active:    true,
		UpdatedAt: now,
	}
	refresh(&w, f, now)
	return w, nil
}

// refresh copies the fields an incident update may change. Identity fields
// (key, source id, start date, starting point, FIPS) are left alone.
func refresh(w *domain.Wildfire, f arcgis.Feature, now time.Time) {
	p := f.Properties
	w.AcresBurned = 0
	if p.GISAcres != nil {
		w.AcresBurned = int64(*p.GISAcres)
	}
	w.Severity = Severity(p.IncidentComplexityLevel)
	w.Cost = p.EstimatedFinalCost
	w.PercentContained = p.PercentContained
	w.Description = joinNonEmpty(" - ", p.IncidentName, p.IncidentShortDescription)
	w.FuelSource = joinNonEmpty(" / ", p.PrimaryFuelModel, p.SecondaryFuelModel)
	w.Location.Shape = nil
	if f.Geometry != nil {
		w.Location.Shape = domain.RepairShape(domain.ExteriorRings(f.Geometry.Coordinates))
	}
	if modified, ok := arcgis.EpochMillis(p.ModifiedOnDateTime); ok {
		w.LastModified = modified
	} else {
		w.LastModified = now
	}
}

// IsLive reports whether an incident should stay tracked: not declared out,
// not fully contained, and modified within the staleness window. An incident
// with no modification time is stale.
func IsLive(p arcgis.IncidentProperties, now time.Time, staleness time.Duration) bool {
	if p.FireOutDateTime != nil {
		return false
	}
	if p.PercentContained != nil && *p.PercentContained >= 100 {
		return false
	}
	modified, ok := arcgis.EpochMillis(p.ModifiedOnDateTime)
	return ok && !modified.Before(now.Add(-staleness))
}

// splitFIPS splits a five-digit point-of-origin FIPS into state and county.
func splitFIPS(fips string) (state, county string) {
	fips = strings.TrimSpace(fips)
	if len(fips) < 3 {
		return "", ""
	}
	return fips[:2], fips[2:]
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
