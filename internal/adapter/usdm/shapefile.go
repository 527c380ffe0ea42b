package usdm

import (
	"archive/zip"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// earthRadius is the WGS84 semi-major axis used by Web Mercator.
const earthRadius = 6378137.0

type projection int

const (
	geographic projection = iota
	webMercator
)

// ReadShapefileZip reads every DM polygon from a zipped shapefile. Web
// Mercator coordinates are converted to WGS84 longitude/latitude.
func ReadShapefileZip(zipPath string) ([]domain.DroughtPolygon, error) {
	proj, err := detectProjection(zipPath)
	if err != nil {
		return nil, err
	}

	r, err := shp.OpenZip(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer r.Close()

	dmField := -1
	for i, f := range r.Fields() {
		if strings.EqualFold(f.String(), "DM") {
			dmField = i
			break
		}
	}
	if dmField < 0 {
		return nil, fmt.Errorf("shapefile has no DM attribute")
	}

	var out []domain.DroughtPolygon
	for r.Next() {
		n, shape := r.Shape()
		dm, err := strconv.ParseFloat(strings.TrimSpace(r.Attribute(dmField)), 64)
		if err != nil {
			continue
		}

		var parts []int32
		var points []shp.Point
		switch s := shape.(type) {
		case *shp.Polygon:
			parts, points = s.Parts, s.Points
		case *shp.PolygonZ:
			parts, points = s.Parts, s.Points
		case *shp.PolygonM:
			parts, points = s.Parts, s.Points
		default:
			return nil, fmt.Errorf("shape %d: unsupported type %T", n, shape)
		}
		out = append(out, assemble(int(dm), splitParts(parts, points, proj))...)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}
	return out, nil
}

// detectProjection inspects the .prj member of the archive. Archives without
// one are assumed to be geographic.
func detectProjection(zipPath string) (projection, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return geographic, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.EqualFold(path.Ext(f.Name), ".prj") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return geographic, fmt.Errorf("open %s: %w", f.Name, err)
		}
		wkt, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return geographic, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return parseProjection(string(wkt))
	}
	return geographic, nil
}

func parseProjection(wkt string) (projection, error) {
	switch {
	case strings.Contains(wkt, "Mercator"):
		return webMercator, nil
	case strings.HasPrefix(strings.TrimSpace(wkt), "PROJCS"):
		return geographic, fmt.Errorf("unsupported projection: %.60s", wkt)
	default:
		return geographic, nil
	}
}

// mercatorToWGS84 inverts the spherical Web Mercator projection.
func mercatorToWGS84(x, y float64) orb.Point {
	lon := x / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return orb.Point{lon, lat}
}

func splitParts(parts []int32, points []shp.Point, proj projection) []orb.Ring {
	rings := make([]orb.Ring, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || int(end) > len(points) {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			if proj == webMercator {
				ring = append(ring, mercatorToWGS84(p.X, p.Y))
			} else {
				ring = append(ring, orb.Point{p.X, p.Y})
			}
		}
		rings = append(rings, ring)
	}
	return rings
}

// assemble groups shapefile rings into polygons. Exterior rings are
// clockwise; each counter-clockwise hole joins the first exterior that
// contains its first vertex, or the most recent exterior. Rings are repaired
// once the groups are known.
func assemble(dm int, rings []orb.Ring) []domain.DroughtPolygon {
	type group struct {
		exterior orb.Ring
		holes    []orb.Ring
	}
	var groups []group
	var holes []orb.Ring
	for _, r := range rings {
		if r.Orientation() == orb.CW {
			groups = append(groups, group{exterior: r})
		} else {
			holes = append(holes, r)
		}
	}
	if len(groups) == 0 {
		// No clockwise ring; treat every ring as an exterior.
		for _, r := range holes {
			groups = append(groups, group{exterior: r})
		}
		holes = nil
	}
	for _, h := range holes {
		if len(h) == 0 {
			continue
		}
		target := len(groups) - 1
		for i := range groups {
			ext := groups[i].exterior
			if ext.Bound().Contains(h[0]) && planar.RingContains(ext, h[0]) {
				target = i
				break
			}
		}
		groups[target].holes = append(groups[target].holes, h)
	}

	polys := make([]domain.DroughtPolygon, 0, len(groups))
	for _, g := range groups {
		if p, ok := domain.NewDroughtPolygon(dm, []orb.Ring{g.exterior}, g.holes); ok {
			polys = append(polys, p)
		}
	}
	return polys
}
