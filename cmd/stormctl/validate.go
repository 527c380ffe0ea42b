package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/couchcryptid/storm-data-sync/internal/adapter/nws"
	"github.com/couchcryptid/storm-data-sync/internal/alerts"
	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/lifecycle"
	"github.com/spf13/cobra"
)

var (
	validateCertainty []string
	validateZoneBase  string
)

var validateCmd = &cobra.Command{
	Use:   "validate <feed.json>",
	Short: "Normalize a saved alerts feed offline and report what would be ingested",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		report, err := validateFeed(f, nws.DefaultAlertQuery(validateCertainty), validateZoneBase)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, report)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Features:  %d\n", report.Features)
		fmt.Fprintf(out, "Accepted:  %d (%d unique keys)\n", report.Accepted, len(report.Keys))
		reasons := make([]string, 0, len(report.Rejected))
		for r := range report.Rejected {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(out, "Rejected:  %d (%s)\n", report.Rejected[r], r)
		}
		for _, k := range report.Keys {
			fmt.Fprintf(out, "  %s\n", k)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringSliceVar(&validateCertainty, "certainty", []string{"Observed", "Likely"}, "accepted alert certainties")
	validateCmd.Flags().StringVar(&validateZoneBase, "zone-base", "https://api.weather.gov", "base URL for fallback zone endpoints")
}

type feedReport struct {
	Features int            `json:"features"`
	Accepted int            `json:"accepted"`
	Rejected map[string]int `json:"rejected"`
	Keys     []string       `json:"keys"`
}

func validateFeed(r io.Reader, q nws.AlertQuery, zoneBase string) (feedReport, error) {
	var fc nws.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return feedReport{}, fmt.Errorf("decode feed: %w", err)
	}

	report := feedReport{Features: len(fc.Features), Rejected: map[string]int{}, Keys: []string{}}
	var accepted []domain.Alert
	for _, f := range fc.Features {
		a, err := alerts.Normalize(f, q, zoneBase)
		var rej *alerts.RejectError
		switch {
		case errors.As(err, &rej):
			report.Rejected[rej.Reason]++
			continue
		case err != nil:
			return feedReport{}, err
		}
		accepted = append(accepted, a)
	}

	report.Accepted = len(accepted)
	for _, a := range lifecycle.Dedup(accepted) {
		report.Keys = append(report.Keys, a.Key)
	}
	return report, nil
}
