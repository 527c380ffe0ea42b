// Package arcgis queries the NIFC interagency wildfire feature service.
package arcgis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/adapter/upstream"
	"github.com/paulmach/orb/geojson"
)

// activeClause selects incidents in complexity tiers 1-3 that are not out
// and not fully contained.
const activeClause = "attr_IncidentComplexityLevel IN ('Type 1 Incident','Type 2 Incident','Type 3 Incident') " +
	"AND attr_FireOutDateTime IS NULL " +
	"AND (attr_PercentContained < 100 OR attr_PercentContained IS NULL)"

// Feature is one incident from the GeoJSON query response.
type Feature struct {
	Properties IncidentProperties `json:"properties"`
	Geometry   *geojson.Geometry  `json:"geometry"`
}

// IncidentProperties are the attr_/poly_ fields the sync engine reads.
// Timestamps are epoch milliseconds.
type IncidentProperties struct {
	ObjectID                 int64    `json:"OBJECTID"`
	UniqueFireIdentifier     string   `json:"attr_UniqueFireIdentifier"`
	IncidentName             string   `json:"attr_IncidentName"`
	IncidentShortDescription string   `json:"attr_IncidentShortDescription"`
	FireDiscoveryDateTime    *float64 `json:"attr_FireDiscoveryDateTime"`
	ModifiedOnDateTime       *float64 `json:"attr_ModifiedOnDateTime_dt"`
	FireOutDateTime          *float64 `json:"attr_FireOutDateTime"`
	POOFips                  string   `json:"attr_POOFips"`
	InitialLatitude          *float64 `json:"attr_InitialLatitude"`
	InitialLongitude         *float64 `json:"attr_InitialLongitude"`
	GISAcres                 *float64 `json:"poly_GISAcres"`
	IncidentComplexityLevel  string   `json:"attr_IncidentComplexityLevel"`
	PercentContained         *float64 `json:"attr_PercentContained"`
	EstimatedFinalCost       *float64 `json:"attr_EstimatedFinalCost"`
	PrimaryFuelModel         string   `json:"attr_PrimaryFuelModel"`
	SecondaryFuelModel       string   `json:"attr_SecondaryFuelModel"`
}

type featureCollection struct {
	Features []Feature `json:"features"`
	// ArcGIS reports query errors with a 200 status.
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// EpochMillis converts an ArcGIS timestamp to UTC time.
func EpochMillis(ms *float64) (time.Time, bool) {
	if ms == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(*ms)).UTC(), true
}

// Client queries one ArcGIS FeatureServer layer.
type Client struct {
	queryURL string
	http     *upstream.Client
	logger   *slog.Logger
}

// NewClient creates a client for the layer's /query endpoint.
func NewClient(queryURL string, transport *upstream.Client, logger *slog.Logger) *Client {
	return &Client{queryURL: queryURL, http: transport, logger: logger}
}

// ActiveWhereClause builds the where clause for active incidents modified at
// or after since. A zero since omits the time filter.
func ActiveWhereClause(since time.Time) string {
	if since.IsZero() {
		return activeClause
	}
	return activeClause + fmt.Sprintf(" AND attr_ModifiedOnDateTime_dt >= TIMESTAMP '%s'", since.UTC().Format("2006-01-02 15:04:05"))
}

// ActiveIncidents fetches active incidents modified since the given time.
func (c *Client) ActiveIncidents(ctx context.Context, since time.Time) ([]Feature, error) {
	v := baseParams()
	v.Set("where", ActiveWhereClause(since))
	features, err := c.query(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("fetch active incidents: %w", err)
	}
	c.logger.Info("fetched wildfire incidents", "count", len(features), "since", since)
	return features, nil
}

// IncidentsByObjectIDs fetches the given incidents in one request. Incidents
// the service no longer has are simply absent from the result.
func (c *Client) IncidentsByObjectIDs(ctx context.Context, ids []int64) ([]Feature, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	v := baseParams()
	v.Set("objectIds", strings.Join(parts, ","))
	features, err := c.query(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("fetch incidents by object id: %w", err)
	}
	c.logger.Info("fetched tracked wildfire incidents", "requested", len(ids), "returned", len(features))
	return features, nil
}

func (c *Client) query(ctx context.Context, v url.Values) ([]Feature, error) {
	var fc featureCollection
	if err := c.http.GetJSON(ctx, c.queryURL+"?"+v.Encode(), http.Header{"Accept": {"application/geo+json"}}, &fc); err != nil {
		return nil, err
	}
	if fc.Error != nil {
		return nil, fmt.Errorf("arcgis query error %d: %s", fc.Error.Code, fc.Error.Message)
	}
	return fc.Features, nil
}

func baseParams() url.Values {
	v := url.Values{}
	v.Set("outFields", "*")
	v.Set("f", "geojson")
	v.Set("returnGeometry", "true")
	return v
}
