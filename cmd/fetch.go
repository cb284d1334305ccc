package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	var noRender bool

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch a price once and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			result, err := a.Service.FetchPrice(cmd.Context(), args[0], !noRender)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().BoolVar(&noRender, "no-render", false, "disable the headless render fallback")
	return cmd
}
