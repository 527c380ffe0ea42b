package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	redisadapter "github.com/couchcryptid/storm-data-sync/internal/adapter/redis"
	"github.com/couchcryptid/storm-data-sync/internal/config"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/jobs"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	"github.com/spf13/cobra"
)

// countyColumns is the required CSV header, in any order.
var countyColumns = []string{"fips", "state_fips", "state_abbr", "name", "latitude", "longitude"}

var seedCountiesCmd = &cobra.Command{
	Use:   "seed-counties <counties.csv>",
	Short: "Load reference counties used by the drought sync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		counties, rowErrs := readCounties(f)
		for _, err := range rowErrs {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping: %v\n", err)
		}
		if len(counties) == 0 {
			return errors.New("no valid counties in file")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		rdb, err := redisadapter.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()

		res, err := seedCounties(ctx, jobs.RedisStores(rdb, cfg.RedisKeyPrefix).Counties, counties)
		if err != nil {
			return err
		}
		res.Skipped = len(rowErrs)
		if jsonOutput {
			return printJSON(cmd, res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created: %d\nUpdated: %d\nSkipped: %d\n", res.Created, res.Updated, res.Skipped)
		return nil
	},
}

type seedResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// readCounties parses and validates county rows. Invalid rows are returned
// as errors and left out of the result.
func readCounties(r io.Reader) ([]domain.County, []error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, []error{fmt.Errorf("read header: %w", err)}
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range countyColumns {
		if _, ok := col[name]; !ok {
			return nil, []error{fmt.Errorf("missing column %q", name)}
		}
	}

	var (
		out  []domain.County
		errs []error
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}

		lat, latErr := strconv.ParseFloat(rec[col["latitude"]], 64)
		lon, lonErr := strconv.ParseFloat(rec[col["longitude"]], 64)
		if err := errors.Join(latErr, lonErr); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		c := domain.County{
			FIPS:      rec[col["fips"]],
			StateFIPS: rec[col["state_fips"]],
			StateAbbr: strings.ToUpper(rec[col["state_abbr"]]),
			Name:      rec[col["name"]],
			Centroid:  domain.Coordinate{Latitude: lat, Longitude: lon},
		}
		if err := domain.ValidateCounty(c); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		out = append(out, c)
	}
	return out, errs
}

// seedCounties upserts counties keyed by their five-digit FIPS.
func seedCounties(ctx context.Context, counties store.EntityStore[domain.County], rows []domain.County) (seedResult, error) {
	var res seedResult
	for _, c := range rows {
		key := c.StateFIPS + c.FIPS
		created, err := counties.Create(ctx, key, c)
		if err != nil {
			return res, fmt.Errorf("create county %s: %w", key, err)
		}
		if created.Created {
			res.Created++
			continue
		}
		if err := counties.Update(ctx, key, c); err != nil {
			return res, fmt.Errorf("update county %s: %w", key, err)
		}
		res.Updated++
	}
	return res, nil
}
