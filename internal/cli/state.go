package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"stockcore/internal/core"
	"stockcore/pkg/domain"
)

// CheckResult is the output of state check and state check-all.
type CheckResult struct {
	Refs  []domain.EntityRef `json:"refs"`
	Flags []domain.StateFlag `json:"flags"`
	Holds bool               `json:"holds"`
}

// TransitionResult is the output of the set and transition subcommands.
type TransitionResult struct {
	Applied  bool               `json:"applied"`
	Required *domain.StateFlag  `json:"required,omitempty"`
	Target   domain.StateFlag   `json:"target"`
	Refs     []domain.EntityRef `json:"refs"`
	Failed   []domain.EntityRef `json:"failed,omitempty"`
}

// NewStateCommand groups the lifecycle subcommands.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Check and change lifecycle state",
		Long: `Lifecycle flags: active, no_active, delete, no_delete.

check succeeds when any listed flag holds; check-all when the flag holds for
every selected record. Bulk subcommands take explicit ids or select records
with --where, and change either every selected record or none.`,
	}
	cmd.AddCommand(newStateCheckCommand(rootOpts))
	cmd.AddCommand(newStateCheckAllCommand(rootOpts))
	cmd.AddCommand(newStateSetCommand(rootOpts))
	cmd.AddCommand(newStateSetAllCommand(rootOpts))
	cmd.AddCommand(newStateTransitionCommand(rootOpts))
	cmd.AddCommand(newStateTransitionAllCommand(rootOpts))
	return cmd
}

func newStateCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "check <entity> <id> <flag>...",
		Short:         "Succeed when any of the flags holds for the record",
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := domain.ParseEntityType(args[0])
			if err != nil {
				return commandError("parse entity", err)
			}
			flags, err := parseFlags(args[2:]...)
			if err != nil {
				return commandError("parse flags", err)
			}
			ref := domain.Ref(entity, args[1])
			return withSession(cmd, rootOpts, func(s *session) error {
				holds, err := s.svc.Check(cmd.Context(), ref, flags...)
				if err != nil {
					return commandError("check", err)
				}
				res := CheckResult{Refs: []domain.EntityRef{ref}, Flags: flags, Holds: holds}
				return reportCheck(s.out, res)
			})
		},
	}
}

func newStateCheckAllCommand(rootOpts *RootOptions) *cobra.Command {
	var where []string
	cmd := &cobra.Command{
		Use:           "check-all <entity> <flag> [id...]",
		Short:         "Succeed when the flag holds for every selected record",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, flags, err := parseBulkArgs(args[0], args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				refs, err := selectRefs(cmd.Context(), s.svc, entity, args[2:], where)
				if err != nil {
					return err
				}
				holds, err := s.svc.CheckAll(cmd.Context(), flags[0], refs)
				if err != nil {
					return commandError("check-all", err)
				}
				return reportCheck(s.out, CheckResult{Refs: refs, Flags: flags, Holds: holds})
			})
		},
	}
	cmd.Flags().StringSliceVar(&where, "where", nil, "select records for which any of these flags holds")
	return cmd
}

func newStateSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set <entity> <id> <flag>",
		Short:         "Apply a flag to one record unconditionally",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, flags, err := parseBulkArgs(args[0], args[2])
			if err != nil {
				return err
			}
			ref := domain.Ref(entity, args[1])
			return withSession(cmd, rootOpts, func(s *session) error {
				if err := s.svc.SetState(cmd.Context(), ref, flags[0]); err != nil {
					return commandError("set", err)
				}
				return reportTransition(s.out, TransitionResult{Applied: true, Target: flags[0], Refs: []domain.EntityRef{ref}})
			})
		},
	}
}

func newStateSetAllCommand(rootOpts *RootOptions) *cobra.Command {
	var where []string
	cmd := &cobra.Command{
		Use:           "set-all <entity> <flag> [id...]",
		Short:         "Apply a flag to every selected record in one transaction",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, flags, err := parseBulkArgs(args[0], args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				refs, err := selectRefs(cmd.Context(), s.svc, entity, args[2:], where)
				if err != nil {
					return err
				}
				if err := s.svc.SetAll(cmd.Context(), flags[0], refs); err != nil {
					return commandError("set-all", err)
				}
				return reportTransition(s.out, TransitionResult{Applied: true, Target: flags[0], Refs: refs})
			})
		},
	}
	cmd.Flags().StringSliceVar(&where, "where", nil, "select records for which any of these flags holds")
	return cmd
}

func newStateTransitionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "transition <entity> <id> <required> <target>",
		Short:         "Apply target only when required holds",
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := domain.ParseEntityType(args[0])
			if err != nil {
				return commandError("parse entity", err)
			}
			flags, err := parseFlags(args[2], args[3])
			if err != nil {
				return commandError("parse flags", err)
			}
			ref := domain.Ref(entity, args[1])
			return withSession(cmd, rootOpts, func(s *session) error {
				t, err := s.svc.GuardedTransition(cmd.Context(), ref, flags[0], flags[1])
				if err != nil {
					return commandError("transition", err)
				}
				return reportTransition(s.out, transitionResult(t, []domain.EntityRef{ref}))
			})
		},
	}
}

func newStateTransitionAllCommand(rootOpts *RootOptions) *cobra.Command {
	var where []string
	cmd := &cobra.Command{
		Use:           "transition-all <entity> <required> <target> [id...]",
		Short:         "Apply target to every selected record when required holds for all of them",
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := domain.ParseEntityType(args[0])
			if err != nil {
				return commandError("parse entity", err)
			}
			flags, err := parseFlags(args[1], args[2])
			if err != nil {
				return commandError("parse flags", err)
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				refs, err := selectRefs(cmd.Context(), s.svc, entity, args[3:], where)
				if err != nil {
					return err
				}
				t, err := s.svc.GuardedTransitionAll(cmd.Context(), flags[0], flags[1], refs)
				if err != nil {
					return commandError("transition-all", err)
				}
				return reportTransition(s.out, transitionResult(t, refs))
			})
		},
	}
	cmd.Flags().StringSliceVar(&where, "where", nil, "select records for which any of these flags holds")
	return cmd
}

func parseBulkArgs(entityName, flagName string) (domain.EntityType, []domain.StateFlag, error) {
	entity, err := domain.ParseEntityType(entityName)
	if err != nil {
		return "", nil, commandError("parse entity", err)
	}
	flags, err := parseFlags(flagName)
	if err != nil {
		return "", nil, commandError("parse flags", err)
	}
	return entity, flags, nil
}

// selectRefs returns the explicit ids as refs, or the records matching
// where when no id was given. Mixing both is rejected.
func selectRefs(ctx context.Context, svc *core.Service, entity domain.EntityType, ids, where []string) ([]domain.EntityRef, error) {
	if len(ids) > 0 {
		if len(where) > 0 {
			return nil, commandError("pass ids or --where, not both", nil)
		}
		refs := make([]domain.EntityRef, 0, len(ids))
		for _, id := range ids {
			refs = append(refs, domain.Ref(entity, id))
		}
		return refs, nil
	}
	if len(where) == 0 {
		return nil, commandError("no records selected: pass ids or --where", nil)
	}
	filter, err := parseFlags(where...)
	if err != nil {
		return nil, commandError("parse --where", err)
	}
	refs, err := svc.ListRefs(ctx, entity, filter...)
	if err != nil {
		return nil, commandError("select records", err)
	}
	return refs, nil
}

func transitionResult(t domain.Transition, refs []domain.EntityRef) TransitionResult {
	required := t.Required
	return TransitionResult{
		Applied:  t.Applied,
		Required: &required,
		Target:   t.Target,
		Refs:     refs,
		Failed:   t.Failed,
	}
}

func reportCheck(out *OutputFormatter, res CheckResult) error {
	names := flagNames(res.Flags)
	if !res.Holds {
		return out.Failure("STATE_NOT_HELD", fmt.Sprintf("%s does not hold for %s", names, refList(res.Refs)), res)
	}
	return out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s holds for %s\n", names, refList(res.Refs))
	})
}

func reportTransition(out *OutputFormatter, res TransitionResult) error {
	if !res.Applied {
		return out.Failure("GUARD_FAILED",
			fmt.Sprintf("guard %s not satisfied by %s; nothing changed", res.Required, refList(res.Failed)), res)
	}
	return out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s applied to %s\n", res.Target, refList(res.Refs))
	})
}

func flagNames(flags []domain.StateFlag) string {
	parts := make([]string, 0, len(flags))
	for _, f := range flags {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, "|")
}

func refList(refs []domain.EntityRef) string {
	if len(refs) == 0 {
		return "no records"
	}
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ", ")
}
