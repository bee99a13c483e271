// Package cli implements the stockctl command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"stockcore/internal/config"
	"stockcore/internal/core"
	"stockcore/pkg/domain"
)

// RootOptions holds the persistent flags shared by every subcommand.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string
	Trace      bool
}

// NewRootCommand builds the stockctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "stockctl",
		Short: "Manage product templates, variants and lifecycle state",
		Long: `stockctl drives the stockcore catalog: load templates and attribute
domains, synthesize variants, apply lifecycle transitions and export
content-addressed catalog snapshots.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return commandError(fmt.Sprintf("invalid format %q (valid: %s)", opts.Format, strings.Join(ValidFormats, ", ")), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a stockcore YAML config")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json)")
	cmd.PersistentFlags().BoolVar(&opts.Trace, "trace", false, "write operation spans as JSON lines to stderr")

	cmd.AddCommand(NewFingerprintCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewSynthesizeCommand(opts))
	cmd.AddCommand(NewVariantsCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// session is the per-invocation wiring of config, logger and service.
type session struct {
	cfg config.Config
	svc *core.Service
	out *OutputFormatter
}

func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, commandError("load config", err)
	}
	level, _ := cfg.Log.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	svcOpts := []core.ServiceOption{core.WithLogger(logger)}
	if opts.Trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(cmd.ErrOrStderr())))
	}
	svc, err := core.OpenService(cfg.Storage, svcOpts...)
	if err != nil {
		return nil, commandError("open storage", err)
	}
	out := newFormatter(cmd, opts)
	out.VerboseLog("storage: %s", cfg.Storage.Driver)
	return &session{cfg: cfg, svc: svc, out: out}, nil
}

func (s *session) Close() error {
	return s.svc.Close()
}

// withSession opens a session, runs fn and closes the store. Close errors
// surface only when fn succeeded.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(*session) error) (err error) {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = commandError("close storage", cerr)
		}
	}()
	return fn(s)
}

// resolveTemplate accepts a template name or id.
func resolveTemplate(ctx context.Context, svc *core.Service, nameOrID string) (domain.Template, error) {
	tmpl, err := svc.FindTemplateByName(ctx, nameOrID)
	if err == nil {
		return tmpl, nil
	}
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) {
		return domain.Template{}, err
	}
	tmpl, _, err = svc.Variants(ctx, nameOrID)
	if err != nil {
		return domain.Template{}, fmt.Errorf("template %q not found", nameOrID)
	}
	return tmpl, nil
}

func parseFlags(names ...string) ([]domain.StateFlag, error) {
	out := make([]domain.StateFlag, 0, len(names))
	for _, name := range names {
		f, err := domain.ParseStateFlag(name)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
