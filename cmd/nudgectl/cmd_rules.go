package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sapo-planner/nudge-controller/internal/rules"
)

// #region rules

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List, validate or export the rule catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List rules in catalog order",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, _, err := a.catalog()
			if err != nil {
				return err
			}
			printRules(cmd.OutOrStdout(), catalog)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load the catalog and report every invalid rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, source, err := a.catalog()
			if err != nil {
				return err
			}
			if err := rules.ValidateCatalog(catalog); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules ok\n", source, len(catalog))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Print the catalog as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, _, err := a.catalog()
			if err != nil {
				return err
			}
			data, err := rules.Marshal(catalog)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	return cmd
}

// #endregion

// #region output

func printRules(w io.Writer, catalog []rules.Rule) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSEVERITY\tWHEN")
	for _, r := range catalog {
		var kind rules.Kind
		var sev rules.Severity
		var when string
		switch rule := r.(type) {
		case rules.ObjectRule:
			kind, sev = rule.Kind(), rule.SeverityOr(rules.SeverityInfo)
			when = "placed: " + rule.Subject.WhereType
		case rules.ProximityRule:
			kind, sev = rule.Kind(), rule.SeverityOr(rules.SeverityWarning)
			when = fmt.Sprintf("%s < %g ft of %s", rule.Subject.WhereType, rule.Threshold(), rule.Target.LayerID)
		case rules.TextRule:
			kind, sev = rule.Kind(), rule.SeverityOr(rules.SeverityInfo)
			when = "label ~ /" + rule.Match.Pattern + "/"
		default:
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Info().ID, kind, sev, when)
	}
	tw.Flush()
}

// #endregion
