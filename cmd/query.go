package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/issuetree/internal/config"
	"github.com/zjrosen/issuetree/internal/iql"
	"github.com/zjrosen/issuetree/internal/issue"
)

func newQueryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Manage saved queries",
	}
	cmd.AddCommand(newQueryListCmd(c), newQueryAddCmd(c), newQueryRemoveCmd(c), newQueryEnableCmd(c, true), newQueryEnableCmd(c, false))
	return cmd
}

func newQueryListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if len(c.cfg.Queries) == 0 {
				fmt.Fprintln(out, "No saved queries")
				return nil
			}
			fmt.Fprintf(out, "%-10s %-24s %-10s %-8s %s\n", "ID", "NAME", "SITE", "ENABLED", "QUERY")
			for _, q := range c.cfg.Queries {
				site := q.SiteID
				if site == "" {
					site = "-"
				}
				fmt.Fprintf(out, "%-10s %-24s %-10s %-8s %s\n", q.ID, q.Name, site, strconv.FormatBool(q.IsEnabled()), q.Query)
			}
			return nil
		},
	}
}

func newQueryAddCmd(c *cli) *cobra.Command {
	var siteID string
	cmd := &cobra.Command{
		Use:   "add <name> <query>",
		Short: "Save a query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, query := args[0], strings.TrimSpace(args[1])
			sc, err := c.site(siteID, issue.ProductJira, issue.ProductLocal)
			if err != nil {
				return err
			}
			// Local sites speak the built-in query language; check it now.
			if issue.Product(sc.Product) == issue.ProductLocal {
				if _, err := iql.Parse(query); err != nil {
					return fmt.Errorf("invalid query: %w", err)
				}
			}

			q := config.QueryConfig{Name: name, Query: query, SiteID: sc.ID}
			if err := config.ValidateQueries(append(append([]config.QueryConfig{}, c.cfg.Queries...), q), c.cfg.Sites); err != nil {
				return err
			}
			saved, err := config.AddQuery(c.configPath, q, c.cfg.Queries)
			if err != nil {
				return fmt.Errorf("saving query: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved query %s (%s) to %s\n", saved.Name, saved.ID, c.configPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&siteID, "site", "s", "", "site the query runs on (default: first site)")
	return cmd
}

func newQueryRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id-or-name>",
		Short: "Delete a saved query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, ok := c.cfg.FindQuery(args[0])
			if !ok {
				return fmt.Errorf("no saved query %q", args[0])
			}
			if err := config.RemoveQuery(c.configPath, q.ID, c.cfg.Queries); err != nil {
				return fmt.Errorf("removing query: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed query %s (%s)\n", q.Name, q.ID)
			return nil
		},
	}
}

func newQueryEnableCmd(c *cli, enable bool) *cobra.Command {
	use, short := "enable <id-or-name>", "Show a saved query in 'issuetree tree'"
	if !enable {
		use, short = "disable <id-or-name>", "Hide a saved query from 'issuetree tree'"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, ok := c.cfg.FindQuery(args[0])
			if !ok {
				return fmt.Errorf("no saved query %q", args[0])
			}
			if err := config.SetQueryEnabled(c.configPath, q.ID, enable, c.cfg.Queries); err != nil {
				return fmt.Errorf("updating query: %w", err)
			}
			state := "enabled"
			if !enable {
				state = "disabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Query %s %s\n", q.Name, state)
			return nil
		},
	}
}
