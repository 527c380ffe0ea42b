// Package usdm fetches U.S. Drought Monitor category polygons: the current
// week as GeoJSON and earlier weeks as zipped shapefiles.
package usdm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/storm-data-sync/internal/adapter/upstream"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Client fetches drought maps.
type Client struct {
	currentURL     string
	archiveBaseURL string
	http           *upstream.Client
	logger         *slog.Logger
}

// NewClient creates a drought map client.
func NewClient(currentURL, archiveBaseURL string, transport *upstream.Client, logger *slog.Logger) *Client {
	return &Client{
		currentURL:     currentURL,
		archiveBaseURL: strings.TrimRight(archiveBaseURL, "/"),
		http:           transport,
		logger:         logger,
	}
}

// ArchiveURL returns the shapefile archive URL for a YYYYMMDD map date.
func (c *Client) ArchiveURL(date string) string {
	return fmt.Sprintf("%s/data/shapefiles_m/USDM_%s_M.zip", c.archiveBaseURL, date)
}

// Current fetches the most recent drought map.
func (c *Client) Current(ctx context.Context) ([]domain.DroughtPolygon, error) {
	resp, err := c.http.Get(ctx, c.currentURL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, fmt.Errorf("fetch current drought map: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch current drought map: %w", upstream.ResponseError("usdm", resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read current drought map: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode current drought map: %w", err)
	}

	var out []domain.DroughtPolygon
	for _, f := range fc.Features {
		dm, ok := parseDM(f.Properties["DM"])
		if !ok {
			c.logger.Warn("skipping drought feature without DM", "properties", f.Properties)
			continue
		}
		out = append(out, fromGeometry(dm, f.Geometry)...)
	}
	return out, nil
}

// Previous fetches the archived map for a YYYYMMDD date. A missing archive
// is an error; map dates are always Tuesdays.
func (c *Client) Previous(ctx context.Context, date string) ([]domain.DroughtPolygon, error) {
	url := c.ArchiveURL(date)
	resp, err := c.http.Get(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch drought archive %s: %w", date, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch drought archive %s (ensure it is a Tuesday): %w", date, upstream.ResponseError("usdm", resp))
	}

	tmp, err := os.CreateTemp("", "usdm-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("download drought archive %s: %w", date, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("write temp archive: %w", err)
	}

	polygons, err := ReadShapefileZip(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("read drought archive %s: %w", date, err)
	}
	c.logger.Info("loaded drought archive", "date", date, "polygons", len(polygons))
	return polygons, nil
}

// fromGeometry splits a GeoJSON geometry into one DroughtPolygon per polygon
// so holes stay attached to their own exterior.
func fromGeometry(dm int, g orb.Geometry) []domain.DroughtPolygon {
	switch g := g.(type) {
	case orb.Polygon:
		if p, ok := fromPolygon(dm, g); ok {
			return []domain.DroughtPolygon{p}
		}
	case orb.MultiPolygon:
		out := make([]domain.DroughtPolygon, 0, len(g))
		for _, poly := range g {
			if p, ok := fromPolygon(dm, poly); ok {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

func fromPolygon(dm int, poly orb.Polygon) (domain.DroughtPolygon, bool) {
	if len(poly) == 0 {
		return domain.DroughtPolygon{}, false
	}
	return domain.NewDroughtPolygon(dm, []orb.Ring{poly[0]}, poly[1:])
}

// parseDM accepts the category as a JSON number or a numeric string.
func parseDM(v any) (int, bool) {
	switch v := v.(type) {
	case float64:
		return int(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return int(f), true
	}
	return 0, false
}
