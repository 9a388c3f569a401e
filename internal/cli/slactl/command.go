// Package slactl holds the offline checks for SLA policy and workflow files.
package slactl

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/msp-sla/internal/definitions"
	"github.com/spec-kit/msp-sla/internal/domain"
	"github.com/spec-kit/msp-sla/internal/sla"
	"github.com/spec-kit/msp-sla/internal/workflow"
)

// ErrCheckFailed is returned when a file loads but does not pass its check.
var ErrCheckFailed = errors.New("check failed")

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "slactl",
		Short:         "SLA policy and workflow tooling",
		Long:          `Validate SLA policies, preview ticket deadlines and analyse workflow definitions without a database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newValidatePolicyCommand(),
		newDeadlinesCommand(),
		newCheckWorkflowCommand(),
	)
	return cmd
}

func newValidatePolicyCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate-policy",
		Short: "Validate an SLA policy file",
		Long:  `Load an SLA policy from YAML and list every configuration problem.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			policy, err := definitions.LoadPolicy(file)
			if err != nil {
				return err
			}
			problems := sla.ValidatePolicy(policy)
			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				fmt.Fprintf(out, "policy %q is valid\n", policy.Name)
				return nil
			}
			for _, p := range problems {
				if p.Field == "" {
					fmt.Fprintf(out, "- %s\n", p.Message)
					continue
				}
				fmt.Fprintf(out, "- %s: %s\n", p.Field, p.Message)
			}
			return fmt.Errorf("%w: %d problem(s) in %s", ErrCheckFailed, len(problems), file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the policy YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDeadlinesCommand() *cobra.Command {
	var (
		file     string
		priority string
		created  string
		now      string
	)
	cmd := &cobra.Command{
		Use:   "deadlines",
		Short: "Compute response and resolution deadlines",
		Long: `Compute the deadlines of a ticket created at --created with --priority under the policy in --file.
With --now the breach and warning state at that instant is printed too.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, ok := domain.ParsePriority(priority)
			if !ok {
				return fmt.Errorf("unknown priority %q", priority)
			}
			createdAt, err := time.Parse(time.RFC3339, created)
			if err != nil {
				return fmt.Errorf("invalid --created: %w", err)
			}

			var policy *domain.SLAPolicy
			if file != "" {
				if policy, err = definitions.LoadPolicy(file); err != nil {
					return err
				}
			}

			ticket := domain.Ticket{Priority: p, CreatedAt: createdAt}
			d, err := sla.ComputeDeadlines(ticket, policy)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printDeadlines(out, d, policy)

			if now == "" {
				return nil
			}
			at, err := time.Parse(time.RFC3339, now)
			if err != nil {
				return fmt.Errorf("invalid --now: %w", err)
			}
			a := sla.Assess(ticket, policy, d, at)
			fmt.Fprintf(out, "response breached:   %t (warning %t)\n", a.ResponseBreached, a.ResponseWarning)
			fmt.Fprintf(out, "resolution breached: %t (warning %t)\n", a.ResolutionBreached, a.ResolutionWarning)
			if reason := a.Reason(); reason != domain.ReasonNone {
				fmt.Fprintf(out, "escalation reason:   %s\n", reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the policy YAML file (default: built-in targets)")
	cmd.Flags().StringVarP(&priority, "priority", "p", string(domain.TicketPriorityMedium), "Ticket priority")
	cmd.Flags().StringVar(&created, "created", "", "Ticket creation time (RFC3339)")
	cmd.Flags().StringVar(&now, "now", "", "Evaluate breach state at this time (RFC3339)")
	_ = cmd.MarkFlagRequired("created")
	return cmd
}

func printDeadlines(out io.Writer, d sla.Deadlines, policy *domain.SLAPolicy) {
	if policy == nil {
		fmt.Fprintln(out, "policy:     built-in defaults")
	} else {
		fmt.Fprintf(out, "policy:     %s\n", policy.Name)
	}
	fmt.Fprintf(out, "response:   %s\n", d.Response.Format(time.RFC3339))
	fmt.Fprintf(out, "resolution: %s\n", d.Resolution.Format(time.RFC3339))
}

func newCheckWorkflowCommand() *cobra.Command {
	var (
		file   string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "check-workflow",
		Short: "Analyse a workflow file",
		Long:  `Report circular status transitions and rules that can never be evaluated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := definitions.LoadWorkflow(file)
			if err != nil {
				return err
			}
			report := workflow.NewEngine(nil, nil).Validate(wf.Transitions)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "workflow %s: %d transition(s)\n", wf.ID, len(wf.Transitions))
			for _, w := range report.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			if strict && len(report.Warnings) > 0 {
				return fmt.Errorf("%w: %d warning(s) in %s", ErrCheckFailed, len(report.Warnings), file)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the workflow YAML file")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any warning is reported")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
