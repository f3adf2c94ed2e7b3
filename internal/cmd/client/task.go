package client

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTaskCommand constructs the `task` command group for queue inspection.
func NewTaskCommand(baseURL BaseURLFunc) *cobra.Command {
	taskCmd := &cobra.Command{Use: "task", Short: "Delivery task operations"}
	taskCmd.AddCommand(
		newTaskFailedCommand(baseURL),
		newTaskCompletedCommand(baseURL),
		newTaskStatsCommand(baseURL),
	)
	return taskCmd
}

func newTaskFailedCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List terminally failed delivery tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			q := url.Values{}
			if filter != "" {
				q.Set("filter", filter)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			u := baseURL() + "/v1/tasks/failed"
			if len(q) > 0 {
				u += "?" + q.Encode()
			}
			return doJSON(http.MethodGet, u, nil, nil)
		},
	}
	cmd.Flags().String("filter", "", `CEL filter, e.g. 'attempts >= 3 && last_error.contains("550")'`)
	cmd.Flags().Int("limit", 0, "Maximum number of tasks to return")
	return cmd
}

func newTaskCompletedCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completed",
		Short: "List recent completed deliveries, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			u := baseURL() + "/v1/tasks/completed"
			if limit > 0 {
				u += "?limit=" + strconv.Itoa(limit)
			}
			return doJSON(http.MethodGet, u, nil, nil)
		},
	}
	cmd.Flags().Int("limit", 0, "Maximum number of entries to return")
	return cmd
}

func newTaskStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show delivery queue population by state",
		RunE: func(*cobra.Command, []string) error {
			return doJSON(http.MethodGet, baseURL()+"/v1/tasks/stats", nil, nil)
		},
	}
}
