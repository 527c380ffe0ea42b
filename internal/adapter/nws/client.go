// Package nws is the client for api.weather.gov: active alerts, single
// alerts, zone geometry, and Local Storm Report products.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/adapter/upstream"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/paulmach/orb"
)

const (
	acceptGeoJSON = "application/geo+json"
	acceptLD      = "application/ld+json"
)

// AlertQuery holds the server-side filters for the active alerts feed.
type AlertQuery struct {
	Status    string
	Severity  []string
	Urgency   []string
	Certainty []string
}

// DefaultAlertQuery requests actual, severe, imminent alerts at the given certainties.
func DefaultAlertQuery(certainty []string) AlertQuery {
	return AlertQuery{
		Status:    "actual",
		Severity:  []string{"Extreme", "Severe"},
		Urgency:   []string{"Immediate", "Expected"},
		Certainty: certainty,
	}
}

func (q AlertQuery) values() url.Values {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if len(q.Severity) > 0 {
		v.Set("severity", strings.Join(q.Severity, ","))
	}
	if len(q.Urgency) > 0 {
		v.Set("urgency", strings.Join(q.Urgency, ","))
	}
	if len(q.Certainty) > 0 {
		v.Set("certainty", strings.Join(q.Certainty, ","))
	}
	return v
}

// AlertPage is one poll of the active alerts feed.
type AlertPage struct {
	Features []Feature
	// NotModified is set when the feed answered 304 to If-Modified-Since.
	NotModified  bool
	LastModified time.Time
}

// Client talks to the NWS API.
type Client struct {
	baseURL string
	http    *upstream.Client
	logger  *slog.Logger
}

// NewClient creates an NWS client rooted at baseURL (no trailing slash).
func NewClient(baseURL string, transport *upstream.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    transport,
		logger:  logger,
	}
}

// ActiveAlerts fetches the active alerts feed. A non-zero since is sent as
// If-Modified-Since.
func (c *Client) ActiveAlerts(ctx context.Context, q AlertQuery, since time.Time) (AlertPage, error) {
	header := http.Header{"Accept": {acceptGeoJSON}}
	if !since.IsZero() {
		header.Set("If-Modified-Since", since.UTC().Format(http.TimeFormat))
	}

	u := c.baseURL + "/alerts/active"
	if qs := q.values().Encode(); qs != "" {
		u += "?" + qs
	}

	resp, err := c.http.Get(ctx, u, header)
	if err != nil {
		return AlertPage{}, fmt.Errorf("fetch active alerts: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return AlertPage{NotModified: true}, nil
	case http.StatusOK:
	default:
		return AlertPage{}, fmt.Errorf("fetch active alerts: %w", upstream.ResponseError("nws", resp))
	}

	var fc FeatureCollection
	if err := decodeJSON(resp, &fc); err != nil {
		return AlertPage{}, err
	}
	page := AlertPage{Features: fc.Features}
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		page.LastModified = lm
	}
	return page, nil
}

// Alert fetches one alert by id and reduces it to what completion needs.
func (c *Client) Alert(ctx context.Context, id string) (domain.AlertSnapshot, error) {
	var body singleAlert
	u := c.baseURL + "/alerts/" + url.PathEscape(id)
	if err := c.http.GetJSON(ctx, u, http.Header{"Accept": {acceptGeoJSON}}, &body); err != nil {
		return domain.AlertSnapshot{}, fmt.Errorf("fetch alert %s: %w", id, err)
	}

	var props AlertProperties
	switch {
	case len(body.Features) > 0:
		props = body.Features[0].Properties
	case body.Properties != nil:
		props = *body.Properties
	default:
		return domain.AlertSnapshot{}, domain.NotFoundf("alert %s has no properties", id)
	}
	return Snapshot(id, props), nil
}

// Snapshot converts alert properties into a completion snapshot. The message
// type comes from the VTEC action and defaults to NEW.
func Snapshot(id string, props AlertProperties) domain.AlertSnapshot {
	msgType := domain.MessageTypeOf(props.Parameter("VTEC"))
	if msgType == "" {
		msgType = domain.MsgNew
	}
	snap := domain.AlertSnapshot{
		ID:              id,
		MessageType:     msgType,
		EventEndingTime: ParseTimePtr(props.Parameter("eventEndingTime")),
		Ends:            ParseTimePtr(props.Ends),
		Expires:         ParseTimePtr(props.Expires),
	}
	if props.ReplacedBy != "" {
		snap.ReplacedBy = AlertIDFromURL(props.ReplacedBy)
	}
	return snap
}

// ZoneShape fetches a zone and returns the exterior rings of its geometry.
func (c *Client) ZoneShape(ctx context.Context, endpoint string) ([]orb.Ring, error) {
	var zone zoneFeature
	if err := c.http.GetJSON(ctx, endpoint, http.Header{"Accept": {acceptGeoJSON}}, &zone); err != nil {
		return nil, fmt.Errorf("fetch zone %s: %w", endpoint, err)
	}
	if zone.Geometry == nil || zone.Geometry.Coordinates == nil {
		return nil, nil
	}
	return domain.RepairShape(domain.ExteriorRings(zone.Geometry.Coordinates)), nil
}

// Reports lists Local Storm Reports issued by office at or after since.
// Products that fail to load are logged and skipped.
func (c *Client) Reports(ctx context.Context, office string, since time.Time) ([]domain.FieldReport, error) {
	loc := LSRLocation(office)
	if loc == "" {
		return nil, domain.Validationf("empty office")
	}

	var list productList
	u := c.baseURL + "/products/types/LSR/locations/" + url.PathEscape(loc)
	if err := c.http.GetJSON(ctx, u, http.Header{"Accept": {acceptLD}}, &list); err != nil {
		return nil, fmt.Errorf("list LSR products for %s: %w", loc, err)
	}

	var reports []domain.FieldReport
	for _, ref := range list.Graph {
		issued, ok := ParseTime(ref.IssuanceTime)
		if !ok || issued.Before(since) {
			continue
		}

		var p product
		if err := c.http.GetJSON(ctx, c.baseURL+"/products/"+url.PathEscape(ref.ID), http.Header{"Accept": {acceptLD}}, &p); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("skipping LSR product", "product_id", ref.ID, "office", loc, "error", err)
			continue
		}
		reports = append(reports, domain.FieldReport{
			ID:     ref.ID,
			Office: loc,
			Issued: issued,
			Text:   p.ProductText,
		})
	}
	return reports, nil
}

func decodeJSON(resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode nws response: %w", err)
	}
	return nil
}
