package confirmation

import (
	"context"
	"regexp"
	"strconv"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
)

// Extractor pulls report coordinates out of free-form product text.
type Extractor interface {
	Coordinates(ctx context.Context, text string) ([]domain.Coordinate, error)
}

// lsrCoordinate matches the "35.25N 97.44W" column of an LSR entry.
var lsrCoordinate = regexp.MustCompile(`\b(\d{1,2}\.\d{1,4})N\s+(\d{1,3}\.\d{1,4})W\b`)

// LSRExtractor reads every coordinate pair printed in an LSR product.
// Longitudes are returned as printed (positive); callers normalize the sign.
type LSRExtractor struct{}

func (LSRExtractor) Coordinates(_ context.Context, text string) ([]domain.Coordinate, error) {
	matches := lsrCoordinate.FindAllStringSubmatch(text, -1)
	out := make([]domain.Coordinate, 0, len(matches))
	for _, m := range matches {
		lat, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		out = append(out, domain.Coordinate{Latitude: lat, Longitude: lon})
	}
	return out, nil
}
