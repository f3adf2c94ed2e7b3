package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the mailroom client.
// It registers the issue, subscriber and task command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "mailroom",
		Short: "Mailroom client commands",
	}
	root.AddCommand(NewIssueCommand(baseURL))
	root.AddCommand(NewSubscriberCommand(baseURL))
	root.AddCommand(NewTaskCommand(baseURL))
	return root
}
