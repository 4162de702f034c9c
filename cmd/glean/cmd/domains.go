package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/MeKo-Tech/glean/internal/models"
	"github.com/MeKo-Tech/glean/internal/pipeline"
	"github.com/spf13/cobra"
)

func newDomainsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "domains",
		Short: "List domains and whether their detector models are present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if _, err := fmt.Fprintln(tw, "DOMAIN\tDETECTOR\tSTATUS"); err != nil {
				return err
			}
			for _, d := range pipeline.Domains {
				model, status := "-", "ready"
				if d.UsesDetector() {
					dc, err := a.cfg.ToDetectorConfig(d)
					if err != nil {
						return err
					}
					model = dc.ModelPath
					if err := models.ValidateModelExists(model); err != nil {
						status = "missing model"
					}
				}
				if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", d, model, status); err != nil {
					return err
				}
			}
			return tw.Flush()
		},
	}
}
