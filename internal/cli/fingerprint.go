package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"stockcore/pkg/fingerprint"
)

// FingerprintResult is the output of the fingerprint command.
type FingerprintResult struct {
	Digest    string `json:"digest"`
	Canonical string `json:"canonical"`
}

// NewFingerprintCommand digests an attribute assignment without touching
// storage.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		fromJSON string
		domainID string
	)
	cmd := &cobra.Command{
		Use:   "fingerprint [name=value...]",
		Short: "Print the canonical fingerprint of an attribute assignment",
		Example: `  stockctl fingerprint color=red size=S
  stockctl fingerprint --json '{"color":"red","size":"S"}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			var value any
			switch {
			case fromJSON != "" && len(args) > 0:
				return commandError("pass either name=value arguments or --json, not both", nil)
			case fromJSON != "":
				if err := json.Unmarshal([]byte(fromJSON), &value); err != nil {
					return commandError("parse --json", err)
				}
			default:
				attrs, err := parseAssignments(args)
				if err != nil {
					return commandError("parse arguments", err)
				}
				value = attrs
			}

			canonical, err := fingerprint.Canonical(value)
			if err != nil {
				return commandError("canonicalize", err)
			}
			digest, err := fingerprint.WithDomain(domainID, value)
			if err != nil {
				return commandError("fingerprint", err)
			}
			res := FingerprintResult{Digest: digest, Canonical: string(canonical)}
			return out.Success(res, func(w io.Writer) {
				fmt.Fprintln(w, res.Digest)
				out.VerboseLog("canonical: %s", res.Canonical)
			})
		},
	}
	cmd.Flags().StringVar(&fromJSON, "json", "", "JSON value to fingerprint")
	cmd.Flags().StringVar(&domainID, "domain", fingerprint.DomainVariantAttributes, "hash domain prefix")
	return cmd
}

func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("expected name=value, got %q", arg)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("attribute %q given twice", name)
		}
		out[name] = value
	}
	return out, nil
}
