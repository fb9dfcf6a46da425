package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"boardmigrate/internal/monday"
)

func newColumnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns",
		Short: "Lists the board's columns",
		Long: `Prints the id, title, and type of every column on the configured
board. Useful for finding the document column id to put in the config.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client := monday.NewClient(monday.Config{
				APIURL:            cfg.Monday.APIURL,
				APIKey:            cfg.Monday.APIKey,
				BoardID:           cfg.Monday.BoardID,
				RequestsPerSecond: cfg.Monday.RequestsPerSecond,
				Timeout:           cfg.Monday.RequestTimeout(),
			}, logger)

			boardName, columns, err := client.BoardColumns(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch board columns: %w", err)
			}

			fmt.Printf("Board: %s\n\n", boardName)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tTYPE")
			for _, col := range columns {
				fmt.Fprintf(w, "%s\t%s\t%s\n", col.ID, col.Title, col.Type)
			}
			return w.Flush()
		},
	}
}
