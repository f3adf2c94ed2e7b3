package client

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

// NewIssueCommand constructs the `issue` command group and subcommands.
func NewIssueCommand(baseURL BaseURLFunc) *cobra.Command {
	issueCmd := &cobra.Command{Use: "issue", Short: "Issue operations"}
	issueCmd.AddCommand(
		newIssuePublishCommand(baseURL),
		newIssueGetCommand(baseURL),
	)
	return issueCmd
}

func newIssuePublishCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an issue to all confirmed subscribers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			title, _ := cmd.Flags().GetString("title")
			htmlBody, _ := cmd.Flags().GetString("html-body")
			textBody, _ := cmd.Flags().GetString("text-body")
			textFile, _ := cmd.Flags().GetString("text-file")
			key, _ := cmd.Flags().GetString("key")
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")

			if key == "" {
				return fmt.Errorf("--key is required; reuse the same key to retry safely")
			}
			if textFile != "" {
				b, err := os.ReadFile(textFile)
				if err != nil {
					return err
				}
				textBody = string(b)
			}
			username, password = credentialsFromEnv(username, password)

			body := map[string]string{
				"title":     title,
				"html_body": htmlBody,
				"text_body": textBody,
			}
			return doJSON(http.MethodPost, baseURL()+"/v1/issues/publish", body, func(req *http.Request) {
				req.SetBasicAuth(username, password)
				req.Header.Set("Idempotency-Key", key)
			})
		},
	}
	cmd.Flags().String("title", "", "Issue title (email subject)")
	cmd.Flags().String("html-body", "", "HTML body")
	cmd.Flags().String("text-body", "", "Plain text body")
	cmd.Flags().String("text-file", "", "Read the plain text body from a file")
	cmd.Flags().String("key", "", "Idempotency key; retries with the same key replay the original response")
	cmd.Flags().String("username", "", "Publisher username (or MAILROOM_PUBLISHER_USERNAME)")
	cmd.Flags().String("password", "", "Publisher password (or MAILROOM_PUBLISHER_PASSWORD)")
	return cmd
}

func newIssueGetCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch one issue record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			return doJSON(http.MethodGet, baseURL()+"/v1/issues/get?id="+url.QueryEscape(id), nil, nil)
		},
	}
	cmd.Flags().String("id", "", "Issue id")
	return cmd
}
