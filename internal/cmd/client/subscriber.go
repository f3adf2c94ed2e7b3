package client

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

// NewSubscriberCommand constructs the `subscriber` command group.
func NewSubscriberCommand(baseURL BaseURLFunc) *cobra.Command {
	subCmd := &cobra.Command{Use: "subscriber", Short: "Subscriber operations"}
	subCmd.AddCommand(
		newSubscriberAddCommand(baseURL),
		newSubscriberConfirmCommand(baseURL),
		newSubscriberListCommand(baseURL),
	)
	return subCmd
}

func newSubscriberAddCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Sign up a subscriber (pending until confirmed)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			body := map[string]string{"email": email, "name": name}
			return doJSON(http.MethodPost, baseURL()+"/v1/subscribers", body, nil)
		},
	}
	cmd.Flags().String("email", "", "Subscriber email")
	cmd.Flags().String("name", "", "Subscriber display name")
	return cmd
}

func newSubscriberConfirmCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a subscription token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				return fmt.Errorf("--token is required")
			}
			return doJSON(http.MethodPost, baseURL()+"/v1/subscribers/confirm?token="+url.QueryEscape(token), nil, nil)
		},
	}
	cmd.Flags().String("token", "", "Confirmation token from signup")
	return cmd
}

func newSubscriberListCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List subscribers (requires publisher credentials)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			username, password = credentialsFromEnv(username, password)
			return doJSON(http.MethodGet, baseURL()+"/v1/subscribers", nil, func(req *http.Request) {
				req.SetBasicAuth(username, password)
			})
		},
	}
	cmd.Flags().String("username", "", "Publisher username (or MAILROOM_PUBLISHER_USERNAME)")
	cmd.Flags().String("password", "", "Publisher password (or MAILROOM_PUBLISHER_PASSWORD)")
	return cmd
}
