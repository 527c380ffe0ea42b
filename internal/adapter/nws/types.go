package nws

import (
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
)

// NWS API response types. Only the fields the sync engines read are decoded.

// FeatureCollection is the /alerts/active response.
type FeatureCollection struct {
	Features []Feature `json:"features"`
}

// Feature is one alert. Geometry is nil when the alert is zone-based.
type Feature struct {
	ID         string            `json:"id"`
	Properties AlertProperties   `json:"properties"`
	Geometry   *geojson.Geometry `json:"geometry"`
}

// AlertProperties mirrors the CAP-derived alert properties.
type AlertProperties struct {
	ID            string              `json:"id"`
	AffectedZones []string            `json:"affectedZones"`
	Geocode       Geocode             `json:"geocode"`
	References    []Reference         `json:"references"`
	Sent          string              `json:"sent"`
	Effective     string              `json:"effective"`
	Onset         string              `json:"onset"`
	Expires       string              `json:"expires"`
	Ends          string              `json:"ends"`
	Status        string              `json:"status"`
	MessageType   string              `json:"messageType"`
	Severity      string              `json:"severity"`
	Certainty     string              `json:"certainty"`
	Urgency       string              `json:"urgency"`
	Event         string              `json:"event"`
	Headline      string              `json:"headline"`
	Description   string              `json:"description"`
	EventCode     map[string][]string `json:"eventCode"`
	Parameters    map[string][]string `json:"parameters"`
	ReplacedBy    string              `json:"replacedBy"`
}

// Geocode holds the parallel SAME and UGC code lists.
type Geocode struct {
	SAME []string `json:"SAME"`
	UGC  []string `json:"UGC"`
}

// Reference points at an earlier alert this one updates.
type Reference struct {
	URL        string `json:"@id"`
	Identifier string `json:"identifier"`
	Sent       string `json:"sent"`
}

// Parameter returns the first value of a named parameter.
func (p AlertProperties) Parameter(name string) string {
	if vs := p.Parameters[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// NWSEventCode returns the upper-cased NationalWeatherService event code.
func (p AlertProperties) NWSEventCode() string {
	return p.eventCode("NationalWeatherService")
}

// SAMEEventCode returns the upper-cased SAME event code, e.g. "TOR".
func (p AlertProperties) SAMEEventCode() string {
	return p.eventCode("SAME")
}

func (p AlertProperties) eventCode(scheme string) string {
	if vs := p.EventCode[scheme]; len(vs) > 0 {
		return strings.ToUpper(strings.TrimSpace(vs[0]))
	}
	return ""
}

type singleAlert struct {
	Features   []Feature        `json:"features"`
	Properties *AlertProperties `json:"properties"`
}

type zoneFeature struct {
	Geometry *geojson.Geometry `json:"geometry"`
}

type productList struct {
	Graph []productRef `json:"@graph"`
}

type productRef struct {
	ID            string `json:"id"`
	IssuingOffice string `json:"issuingOffice"`
	IssuanceTime  string `json:"issuanceTime"`
}

type product struct {
	ID            string `json:"id"`
	IssuingOffice string `json:"issuingOffice"`
	IssuanceTime  string `json:"issuanceTime"`
	ProductText   string `json:"productText"`
}

// ParseTime parses an NWS timestamp. It reports false for empty or malformed values.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseTimePtr is ParseTime returning nil when the value is unusable.
func ParseTimePtr(s string) *time.Time {
	t, ok := ParseTime(s)
	if !ok {
		return nil
	}
	return &t
}

// AlertIDFromURL extracts the alert id from ".../alerts/<id>". Bare ids are
// returned unchanged.
func AlertIDFromURL(u string) string {
	if i := strings.LastIndex(u, "/alerts/"); i >= 0 {
		u = u[i+len("/alerts/"):]
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return u
}

// LSRLocation converts a VTEC office ("KOUN") to the three-letter product
// location ("OUN").
func LSRLocation(office string) string {
	office = strings.ToUpper(strings.TrimSpace(office))
	if len(office) == 4 && (office[0] == 'K' || office[0] == 'P') {
		return office[1:]
	}
	return office
}
