package main

import (
	"fmt"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/spf13/cobra"
)

var vtecCmd = &cobra.Command{
	Use:   "vtec <raw-vtec>",
	Short: "Derive the event key of a VTEC string",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := domain.ParseVTEC(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, map[string]string{
				"key":          v.Key(),
				"message_type": v.MessageType,
				"office":       v.Office,
				"significance": v.Significance,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), v.Key())
		return nil
	},
}
