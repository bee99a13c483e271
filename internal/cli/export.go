package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stockcore/internal/blob"
)

// NewExportCommand writes a template's catalog snapshot to the configured
// blob store.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "export <template>",
		Short:         "Export a template's variants as a content-addressed JSON document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *session) error {
				store, err := blob.Open(cmd.Context(), s.cfg.Blob)
				if err != nil {
					return commandError("open blob store", err)
				}
				s.out.VerboseLog("blob: %s", store.Driver())
				tmpl, err := resolveTemplate(cmd.Context(), s.svc, args[0])
				if err != nil {
					return commandError("resolve template", err)
				}
				res, err := s.svc.ExportCatalog(cmd.Context(), store, tmpl.ID)
				if err != nil {
					return commandError("export", err)
				}
				return s.out.Success(res, func(w io.Writer) {
					verb := "exported"
					if !res.Created {
						verb = "unchanged"
					}
					fmt.Fprintf(w, "✓ %s %s (%d variants)\n", verb, res.Key, res.Variants)
					if res.URL != "" {
						fmt.Fprintf(w, "  %s\n", res.URL)
					}
				})
			})
		},
	}
}
