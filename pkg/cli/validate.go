package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/flow"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/spf13/cobra"
)

// ErrInvalidFlow is returned after the violations have been printed
var ErrInvalidFlow = errors.New("flow is invalid")

type validateOutput struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
	Nodes      int      `json:"nodes"`
	Edges      int      `json:"edges"`
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "validate <file>",
		Short:   "Check a flow document (JSON or YAML)",
		Example: "  mailflow validate triage.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return validateFlow(NewPrinter(cmd.OutOrStdout(), jsonOutput), data)
		},
	}
}

func validateFlow(p *Printer, data []byte) error {
	f, err := flow.Parse(data)
	if err != nil {
		return err
	}

	out := validateOutput{Valid: true, Nodes: len(f.Nodes), Edges: len(f.Edges)}

	var verr *types.ValidationError
	vf, err := flow.Validate(f)
	switch {
	case errors.As(err, &verr):
		out.Valid = false
		out.Violations = verr.Violations
	case err != nil:
		return err
	}

	if p.JSON(out) {
		if !out.Valid {
			return ErrInvalidFlow
		}
		return nil
	}

	if !out.Valid {
		p.Error("%d violation(s)", len(out.Violations))
		for _, v := range out.Violations {
			p.Bullet(v)
		}
		return ErrInvalidFlow
	}

	p.Success("flow %q is valid (%d nodes, %d edges)", f.Name, out.Nodes, out.Edges)

	table := NewTable("NODE", "TYPE", "DETAIL")
	for _, n := range f.Nodes {
		table.AddRow(n.Id, string(n.Type), describeNode(n))
	}
	fmt.Fprintln(p.w)
	table.Print(p.w)

	p.Info("entry node: %s", vf.Trigger.Id)
	return nil
}

func describeNode(n types.Node) string {
	if cfg, ok := n.Trigger(); ok {
		return fmt.Sprintf("query=%q max=%d", cfg.Filter.BuildQuery(), cfg.Limit())
	}
	if cfg, ok := n.Classifier(); ok {
		return "categories=" + strings.Join(cfg.Categories, ",")
	}
	if cfg, ok := n.Action(); ok {
		target := cfg.Category
		if target == "" {
			target = "*"
		}
		return fmt.Sprintf("%s on %s", cfg.ActionType, target)
	}
	return ""
}
