package domain

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Message types carried in the VTEC action field.
const (
	MsgNew        = "NEW"
	MsgContinue   = "CON"
	MsgExtendTime = "EXT"
	MsgExtendArea = "EXA"
	MsgExtendBoth = "EXB"
	MsgUpgrade    = "UPG"
	MsgCorrection = "COR"
	MsgCancel     = "CAN"
	MsgExpire     = "EXP"
)

// CertaintyObserved is the alert certainty that confirms an event on ingest.
const CertaintyObserved = "Observed"

// IsTerminalMessage reports whether the message type ends an event (CAN/EXP).
func IsTerminalMessage(msgType string) bool {
	return msgType == MsgCancel || msgType == MsgExpire
}

// IsObserved reports whether an alert certainty means the hazard was observed.
func IsObserved(certainty string) bool {
	return strings.EqualFold(certainty, CertaintyObserved)
}

// Coordinate is a WGS84 position.
type Coordinate struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// Point returns the coordinate in GeoJSON (lon, lat) order.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// Location is one affected area of an event.
type Location struct {
	StateFIPS          string      `json:"state_fips"`
	CountyFIPS         string      `json:"county_fips"`
	UGCCode            string      `json:"ugc_code,omitempty"`
	ZoneEndpoint       string      `json:"zone_endpoint,omitempty"`
	Shape              []orb.Ring  `json:"shape"`
	StartingPoint      *Coordinate `json:"starting_point,omitempty"`
	ObservedCoordinate *Coordinate `json:"observed_coordinate,omitempty"`
}

// Alert is a normalized NWS alert produced by one poll.
type Alert struct {
	ID          string     `json:"alert_id"`
	Key         string     `json:"key"`
	MessageType string     `json:"message_type"`
	EventCode   string     `json:"event_type"`
	IsWarning   bool       `json:"is_warning"`
	IsWatch     bool       `json:"is_watch"`
	Severity    string     `json:"severity"`
	Urgency     string     `json:"urgency"`
	Certainty   string     `json:"certainty"`
	Effective   time.Time  `json:"effective"`
	Expires     *time.Time `json:"expires,omitempty"`
	ExpectedEnd *time.Time `json:"expected_end,omitempty"`
	// Sent is zero when the feed value was missing or unparsable.
	Sent          time.Time  `json:"sent"`
	Headline      string     `json:"headline"`
	Description   string     `json:"description"`
	RawVTEC       string     `json:"raw_vtec"`
	Office        string     `json:"office"`
	AffectedZones []string   `json:"affected_zones"`
	UGCCodes      []string   `json:"ugc_codes"`
	References    []string   `json:"references"`
	Locations     []Location `json:"locations"`
}

// EventDescription joins the headline and body the way events store them.
func (a Alert) EventDescription() string {
	switch {
	case a.Headline == "":
		return a.Description
	case a.Description == "":
		return a.Headline
	}
	return a.Headline + "\n\n" + a.Description
}

// AlertSnapshot is the subset of a single alert needed to decide completion.
type AlertSnapshot struct {
	ID          string
	MessageType string
	// ReplacedBy is the id of the alert that superseded this one, if any.
	ReplacedBy      string
	EventEndingTime *time.Time
	Ends            *time.Time
	Expires         *time.Time
}

// EndTime resolves the actual end of an event: explicit ending time, then
// ends, then expires, then now.
func (s AlertSnapshot) EndTime(now time.Time) time.Time {
	for _, t := range []*time.Time{s.EventEndingTime, s.Ends, s.Expires} {
		if t != nil {
			return *t
		}
	}
	return now
}

// Event is the persistent record of one VTEC-keyed hazard.
type Event struct {
	EventKey        string     `json:"event_key"`
	NWSAlertID      string     `json:"nws_alert_id"`
	PreviousIDs     []string   `json:"previous_ids"`
	EpisodeKey      string     `json:"episode_key,omitempty"`
	EventType       string     `json:"event_type"`
	HREventType     string     `json:"hr_event_type"`
	Locations       []Location `json:"locations"`
	StartDate       time.Time  `json:"start_date"`
	ExpectedEndDate *time.Time `json:"expected_end_date,omitempty"`
	ActualEndDate   *time.Time `json:"actual_end_date,omitempty"`
	IsActive        bool       `json:"is_active"`
	Confirmed       bool       `json:"confirmed"`
	Description     string     `json:"description"`
	RawVTEC         string     `json:"raw_vtec"`
	Office          string     `json:"office"`
	PropertyDamage  *int64     `json:"property_damage,omitempty"`
	CropsDamage     *int64     `json:"crops_damage,omitempty"`
	RangeMiles      *float64   `json:"range_miles,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasSeen reports whether alertID is the current source alert or part of the history.
func (e *Event) HasSeen(alertID string) bool {
	return e.NWSAlertID == alertID || slices.Contains(e.PreviousIDs, alertID)
}

// Supersede moves the current source alert into the history and makes
// alertID current. The history never holds duplicates.
func (e *Event) Supersede(alertID string) {
	if e.NWSAlertID != "" && e.NWSAlertID != alertID && !slices.Contains(e.PreviousIDs, e.NWSAlertID) {
		e.PreviousIDs = append(e.PreviousIDs, e.NWSAlertID)
	}
	e.NWSAlertID = alertID
}

// key identifies a location by zone code, or by county FIPS when the alert
// carried no UGC code for it.
func (l Location) key() string {
	if l.UGCCode != "" {
		return l.UGCCode
	}
	return "fips:" + l.StateFIPS + l.CountyFIPS
}

// MergeLocations appends locations that are not already present.
func (e *Event) MergeLocations(locs []Location) {
	seen := make(map[string]struct{}, len(e.Locations))
	for _, l := range e.Locations {
		seen[l.key()] = struct{}{}
	}
	for _, l := range locs {
		k := l.key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		e.Locations = append(e.Locations, l)
	}
}

// FieldReport is a Local Storm Report product used as ground truth.
type FieldReport struct {
	ID     string    `json:"id"`
	Office string    `json:"office"`
	Issued time.Time `json:"issued"`
	Text   string    `json:"text"`
}

// Change describes a mutation published to downstream consumers.
type Change struct {
	Entity     string    `json:"entity"`
	Action     string    `json:"action"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// Change entities and actions.
const (
	EntityEvent    = "event"
	EntityWildfire = "wildfire"
	EntityDrought  = "drought"

	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionCompleted = "completed"
)

// ChangePublisher delivers change notifications to downstream consumers.
type ChangePublisher interface {
	Publish(ctx context.Context, changes ...Change) error
}
