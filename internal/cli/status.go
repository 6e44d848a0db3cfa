package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_id>",
		Short: "Check the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/jobs/" + id)
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			jobType, _ := data["type"].(string)
			urgency, _ := data["urgency"].(string)
			status, _ := data["status"].(string)

			fmt.Printf("Job: %s\n", id)
			fmt.Printf("  Type:     %s\n", jobType)
			fmt.Printf("  Urgency:  %s\n", urgency)
			fmt.Printf("  Status:   %s\n", status)

			if mode, ok := data["mode"].(string); ok && mode != "" {
				fmt.Printf("  Mode:     %s\n", mode)
			}
			if deadline, ok := data["defer_deadline_ts"].(string); ok && deadline != "" {
				fmt.Printf("  Deferred until: %s\n", deadline)
			}
			if duration, ok := data["duration_ms"].(float64); ok {
				fmt.Printf("  Duration: %dms\n", int(duration))
			}
			if emissions, ok := data["emissions_kg"].(float64); ok {
				fmt.Printf("  Emissions: %.6f kgCO2\n", emissions)
			}
			if createdAt, ok := data["created_at"].(string); ok {
				fmt.Printf("  Created:  %s\n", createdAt)
			}

			return nil
		},
	}
}
