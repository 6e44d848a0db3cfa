package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var urgency string

	cmd := &cobra.Command{
		Use:   "submit <job-type>",
		Short: "Submit a compute job",
		Long:  "Submit a compute job for carbon-aware scheduling. The scheduler decides FAST, ECO or DEFER on its next tick.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType := args[0]

			req := map[string]any{
				"type":    jobType,
				"urgency": urgency,
			}
			resp, err := client.Post("/api/v1/jobs/", req)
			if err != nil {
				return fmt.Errorf("create job: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			id, ok := data["id"].(string)
			if !ok {
				return fmt.Errorf("job response missing 'id' field")
			}
			status, _ := data["status"].(string)

			fmt.Printf("Job created: %s (status: %s)\n", id, status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&urgency, "urgency", "u", "flexible", "Job urgency (critical, flexible)")
	return cmd
}
