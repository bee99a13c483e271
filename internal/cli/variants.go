package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// VariantRow is one line of the variants listing.
type VariantRow struct {
	ID          string            `json:"id"`
	Label       string            `json:"label"`
	Attributes  map[string]string `json:"attributes"`
	ExtraPrice  int64             `json:"extra_price"`
	Active      bool              `json:"active"`
	Deleted     bool              `json:"deleted"`
	Fingerprint string            `json:"fingerprint"`
}

// NewVariantsCommand lists a template's variants.
func NewVariantsCommand(rootOpts *RootOptions) *cobra.Command {
	var filter []string
	cmd := &cobra.Command{
		Use:           "variants <template>",
		Short:         "List the variants of a template",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, err := parseFlags(filter...)
			if err != nil {
				return commandError("parse --state", err)
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				ref, err := resolveTemplate(cmd.Context(), s.svc, args[0])
				if err != nil {
					return commandError("resolve template", err)
				}
				tmpl, variants, err := s.svc.Variants(cmd.Context(), ref.ID)
				if err != nil {
					return commandError("list variants", err)
				}
				rows := make([]VariantRow, 0, len(variants))
				for _, v := range variants {
					if len(flags) > 0 && !v.Lifecycle.Check(flags...) {
						continue
					}
					rows = append(rows, VariantRow{
						ID:          v.ID,
						Label:       v.Label(tmpl.Name),
						Attributes:  v.Attributes,
						ExtraPrice:  v.ExtraPrice(),
						Active:      v.Lifecycle.IsActive(),
						Deleted:     v.Lifecycle.IsDeleted(),
						Fingerprint: v.Fingerprint,
					})
				}
				return s.out.Success(rows, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tLABEL\tEXTRA\tSTATE")
					for _, r := range rows {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.Label, r.ExtraPrice, stateLabel(r.Active, r.Deleted))
					}
					tw.Flush()
				})
			})
		},
	}
	cmd.Flags().StringSliceVar(&filter, "state", nil, "only list variants for which any of these flags holds")
	return cmd
}

func stateLabel(active, deleted bool) string {
	switch {
	case deleted:
		return "deleted"
	case active:
		return "active"
	default:
		return "inactive"
	}
}
