package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/issuetree/internal/infrastructure/sqlite"
	"github.com/zjrosen/issuetree/internal/issue"
)

func newImportCmd(c *cli) *cobra.Command {
	var siteID string
	cmd := &cobra.Command{
		Use:   "import <fixture.yaml>",
		Short: "Load issues from a YAML file into a local site",
		Long: `Load issues from a YAML file into a local site. Existing issues with the
same key are replaced.

  issues:
    - key: CORE-10
      summary: Checkout
      type: epic
      epic_name: Checkout
    - key: CORE-11
      summary: Cart page
      type: story
      epic: CORE-10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := c.site(siteID, issue.ProductLocal)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening fixture: %w", err)
			}
			defer func() { _ = f.Close() }()

			fixture, err := sqlite.LoadFixture(f)
			if err != nil {
				return err
			}

			sess, err := c.openSession(sc)
			if err != nil {
				return err
			}
			defer sess.Close()

			db := sess.backends[sc.ID].db
			n, err := db.Store().Import(cmd.Context(), fixture)
			if err != nil {
				return fmt.Errorf("importing into %s: %w", sc.ID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d issues into %s (%s)\n", n, sc.ID, db.Path())
			return nil
		},
	}
	cmd.Flags().StringVarP(&siteID, "site", "s", "", "local site to import into (default: first local site)")
	return cmd
}
