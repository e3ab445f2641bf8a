package cmd

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zjrosen/issuetree/internal/bitbucket"
	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/render"
)

func newCommentsCmd(c *cli) *cobra.Command {
	var siteID string
	cmd := &cobra.Command{
		Use:   "comments <workspace/repo> <pr-id>",
		Short: "Show a Bitbucket pull request's comment threads",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prID, err := strconv.Atoi(args[1])
			if err != nil || prID <= 0 {
				return fmt.Errorf("pull request id must be a positive number, got %q", args[1])
			}
			sc, err := c.site(siteID, issue.ProductBitbucket)
			if err != nil {
				return err
			}

			client := bitbucket.NewClient(sc.BaseURL, sc.Username, sc.Token(),
				bitbucket.WithHTTPClient(&http.Client{Timeout: c.cfg.Fetch.Timeout}),
				bitbucket.WithMaxRetries(c.cfg.Fetch.MaxRetries),
			)
			roots, err := client.Thread(cmd.Context(), args[0], prID)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), render.NewThread(cmd.OutOrStdout()).Render(roots))
			return nil
		},
	}
	cmd.Flags().StringVarP(&siteID, "site", "s", "", "bitbucket site (default: first bitbucket site)")
	return cmd
}
