package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/f3rmion/secema/journal"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var journalLimit int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List recent computations from the journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("journal.path")
		if path == "" {
			return errors.New("journal.path is not configured")
		}
		jr, err := journal.Open(path)
		if err != nil {
			return err
		}
		defer jr.Close()

		entries, err := jr.Recent(cmd.Context(), journalLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tSESSION\tPARTIES\tFIELD\tPERIOD\tN\tSTATUS\tRESULT")
		for _, e := range entries {
			result := fmt.Sprintf("%.6f", e.Result)
			if e.Status != journal.StatusOK {
				result = e.Error
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\t%d\t%s\t%s\n",
				e.ID, e.Started.Format(time.RFC3339), e.SessionID, e.Parties,
				e.Field, e.Period, e.Length, e.Status, result)
		}
		return w.Flush()
	},
}

func init() {
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20,
		"Number of entries to show")
	rootCmd.AddCommand(journalCmd)
}
