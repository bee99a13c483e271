package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stockcore/internal/core"
)

// NewSynthesizeCommand re-runs variant synthesis for one template.
func NewSynthesizeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "synthesize <template>",
		Short: "Create the missing variants of a template",
		Long: `synthesize creates one inactive variant for every combination of the
template's active attribute values that has no variant yet. Running it
again without changes creates nothing.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *session) error {
				tmpl, err := resolveTemplate(cmd.Context(), s.svc, args[0])
				if err != nil {
					return commandError("resolve template", err)
				}
				report, err := s.svc.Synthesize(cmd.Context(), tmpl.ID)
				if err != nil {
					return commandError("synthesize", err)
				}
				return s.out.Success(report, func(w io.Writer) {
					writeSynthesisReport(w, tmpl.Name, report)
				})
			})
		},
	}
}

func writeSynthesisReport(w io.Writer, name string, report core.SynthesisReport) {
	fmt.Fprintf(w, "✓ %s: %d created, %d existing\n", name, len(report.Created), len(report.Existing))
	for _, id := range report.Created {
		fmt.Fprintf(w, "  + %s\n", id)
	}
}
