package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"parts-tracker/internal/entities"
	"parts-tracker/internal/workflow"
)

type typeRules struct {
	Type    entities.PartType   `json:"type"`
	Approve []entities.Category `json:"approve"`
	Revert  []entities.Category `json:"revert"`
}

type categoryRules struct {
	Category entities.Category   `json:"category"`
	Statuses []entities.Status   `json:"statuses"`
	Next     []entities.Category `json:"next"`
}

type workflowTable struct {
	Types      []typeRules     `json:"types"`
	Categories []categoryRules `json:"categories"`
}

// NewWorkflowCommand prints the transition rules the server enforces.
func NewWorkflowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "workflow",
		Short:         "Show which categories each part type and category can move to",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := buildWorkflowTable()
			return rootOpts.formatter(cmd).Success(table, func(w io.Writer) error {
				return writeWorkflowText(w, table)
			})
		},
	}
}

func buildWorkflowTable() workflowTable {
	var table workflowTable
	for _, t := range entities.PartTypes {
		table.Types = append(table.Types, typeRules{
			Type:    t,
			Approve: workflow.ApprovalTargets(t),
			Revert:  workflow.RevertTargets(t),
		})
	}
	for _, from := range entities.Categories {
		rules := categoryRules{Category: from, Statuses: workflow.StatusesFor(from)}
		for _, to := range entities.Categories {
			if workflow.CanMove(from, to) {
				rules.Next = append(rules.Next, to)
			}
		}
		table.Categories = append(table.Categories, rules)
	}
	return table
}

func writeWorkflowText(w io.Writer, table workflowTable) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tAPPROVE\tREVERT")
	for _, r := range table.Types {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Type, joinCategories(r.Approve), joinCategories(r.Revert))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSTATUSES\tNEXT")
	for _, r := range table.Categories {
		statuses := make([]string, len(r.Statuses))
		for i, s := range r.Statuses {
			statuses[i] = string(s)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Category, strings.Join(statuses, ", "), joinCategories(r.Next))
	}
	return tw.Flush()
}

func joinCategories(cs []entities.Category) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
