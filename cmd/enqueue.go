package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

func newEnqueueCmd() *cobra.Command {
	var competitorID, productID string

	cmd := &cobra.Command{
		Use:   "enqueue <url>",
		Short: "Publish a scrape job to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if a.Cfg.Queue.Provider == "memory" {
				return errors.New("enqueue requires a durable queue provider; the memory broker is per-process")
			}
			id, err := a.Service.EnqueueScrape(cmd.Context(), args[0], competitorID, productID, "cli")
			if err != nil {
				return err
			}
			cmd.Println(id)
			return nil
		},
	}

	cmd.Flags().StringVar(&competitorID, "competitor", "", "competitor id to update after the scrape")
	cmd.Flags().StringVar(&productID, "product", "", "product id to record price history under")
	return cmd
}
