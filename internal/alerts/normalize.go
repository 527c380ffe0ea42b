// Package alerts polls the NWS active alerts feed and normalizes features
// into domain alerts keyed by VTEC.
package alerts

import (
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/adapter/nws"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/paulmach/orb"
)

// Rejection reasons reported in metrics and logs.
const (
	ReasonFilter    = "filter"
	ReasonEventCode = "event_code"
	ReasonVTEC      = "vtec"
	ReasonID        = "id"
)

// RejectError explains why a feature was dropped during normalization.
type RejectError struct {
	Reason string
	Detail string
}

func (e *RejectError) Error() string {
	return "alert rejected (" + e.Reason + "): " + e.Detail
}

func (e *RejectError) Unwrap() error { return domain.ErrValidation }

func reject(reason, detail string) error {
	return &RejectError{Reason: reason, Detail: detail}
}

// Normalize converts one feed feature into an Alert. Locations are paired from
// the SAME and UGC arrays by index; an inline geometry is applied to every
// location, otherwise shapes are left empty for the zone lookup to fill.
func Normalize(f nws.Feature, q nws.AlertQuery, zoneBaseURL string) (domain.Alert, error) {
	p := f.Properties

	id := p.ID
	if id == "" {
		id = nws.AlertIDFromURL(f.ID)
	}
	if id == "" {
		return domain.Alert{}, reject(ReasonID, "feature has no id")
	}
	if err := matchQuery(p, q); err != nil {
		return domain.Alert{}, err
	}

	// The allow-list uses SAME codes for some products (TOR, SVR) where the
	// NWS scheme differs (TOW, SVW), so either scheme may match.
	code := p.NWSEventCode()
	if !domain.IsTrackedEventCode(code) {
		code = p.SAMEEventCode()
	}
	if !domain.IsTrackedEventCode(code) {
		return domain.Alert{}, reject(ReasonEventCode, id+": untracked event code "+p.NWSEventCode())
	}

	raw := p.Parameter("VTEC")
	v, err := domain.ParseVTEC(raw)
	if err != nil {
		return domain.Alert{}, reject(ReasonVTEC, id+": "+err.Error())
	}

	a := domain.Alert{
		ID:            id,
		Key:           v.Key(),
		MessageType:   v.MessageType,
		EventCode:     code,
		IsWarning:     v.IsWarning(),
		IsWatch:       v.IsWatch(),
		Severity:      p.Severity,
		Urgency:       p.Urgency,
		Certainty:     p.Certainty,
		Expires:       nws.ParseTimePtr(p.Expires),
		ExpectedEnd:   expectedEnd(p),
		Headline:      p.Headline,
		Description:   p.Description,
		RawVTEC:       raw,
		Office:        v.Office,
		AffectedZones: p.AffectedZones,
		UGCCodes:      p.Geocode.UGC,
	}
	if t, ok := nws.ParseTime(p.Effective); ok {
		a.Effective = t
	} else if t, ok := nws.ParseTime(p.Onset); ok {
		a.Effective = t
	}
	if t, ok := nws.ParseTime(p.Sent); ok {
		a.Sent = t
	}
	for _, ref := range p.References {
		id := ref.Identifier
		if id == "" {
			id = nws.AlertIDFromURL(ref.URL)
		}
		if id != "" {
			a.References = append(a.References, id)
		}
	}

	var inline []orb.Ring
	if f.Geometry != nil && f.Geometry.Coordinates != nil {
		inline = domain.RepairShape(domain.ExteriorRings(f.Geometry.Coordinates))
	}
	a.Locations = locations(p, inline, zoneBaseURL)
	return a, nil
}

// expectedEnd resolves eventEndingTime, then ends, then expires.
func expectedEnd(p nws.AlertProperties) *time.Time {
	for _, s := range []string{p.Parameter("eventEndingTime"), p.Ends, p.Expires} {
		if t := nws.ParseTimePtr(s); t != nil {
			return t
		}
	}
	return nil
}

func locations(p nws.AlertProperties, inline []orb.Ring, zoneBaseURL string) []domain.Location {
	locs := make([]domain.Location, 0, len(p.Geocode.SAME))
	for i, same := range p.Geocode.SAME {
		var loc domain.Location
		// SAME codes are 0SSCCC: state FIPS then county FIPS.
		if len(same) >= 6 {
			loc.StateFIPS = same[1:3]
			loc.CountyFIPS = same[3:6]
		}
		if i < len(p.Geocode.UGC) {
			loc.UGCCode = p.Geocode.UGC[i]
		}
		loc.ZoneEndpoint = zoneEndpoint(loc.UGCCode, p.AffectedZones, zoneBaseURL)
		if len(inline) > 0 {
			loc.Shape = slices.Clone(inline)
		}
		locs = append(locs, loc)
	}
	return locs
}

func zoneEndpoint(ugc string, affected []string, zoneBaseURL string) string {
	if ugc == "" {
		return ""
	}
	for _, z := range affected {
		if strings.Contains(z, ugc) {
			return z
		}
	}
	return strings.TrimRight(zoneBaseURL, "/") + "/zones/county/" + ugc
}

// matchQuery re-applies the server-side filters so saved feeds and
// permissive upstreams produce the same result.
func matchQuery(p nws.AlertProperties, q nws.AlertQuery) error {
	if q.Status != "" && !strings.EqualFold(p.Status, q.Status) {
		return reject(ReasonFilter, "status "+p.Status)
	}
	if !containsFold(q.Severity, p.Severity) {
		return reject(ReasonFilter, "severity "+p.Severity)
	}
	if !containsFold(q.Urgency, p.Urgency) {
		return reject(ReasonFilter, "urgency "+p.Urgency)
	}
	if !containsFold(q.Certainty, p.Certainty) {
		return reject(ReasonFilter, "certainty "+p.Certainty)
	}
	return nil
}

// containsFold reports whether v is in set. An empty set matches anything.
func containsFold(set []string, v string) bool {
	if len(set) == 0 {
		return true
	}
	return slices.ContainsFunc(set, func(s string) bool { return strings.EqualFold(s, v) })
}
