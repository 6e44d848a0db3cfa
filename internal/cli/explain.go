package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <job_id>",
		Short: "Show why the scheduler placed a job the way it did",
		Long:  "Show the scheduling decision for a job: the matched policy rule, the carbon reading it saw, and the deferral deadline if any.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/jobs/" + id + "/decision")
			if err != nil {
				return fmt.Errorf("get decision: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			status, _ := data["status"].(string)

			fmt.Printf("Job: %s\n", id)
			fmt.Printf("  Status: %s\n", status)

			ruleID, _ := data["policy_rule_id"].(string)
			if ruleID == "" {
				fmt.Println("  No decision yet: the scheduler has not evaluated this job.")
				return nil
			}

			fmt.Printf("  Rule:   %s\n", ruleID)
			if mode, ok := data["mode"].(string); ok && mode != "" {
				fmt.Printf("  Mode:   %s\n", mode)
			}
			if reason, ok := data["decision_reason"].(string); ok && reason != "" {
				fmt.Printf("  Reason: %s\n", reason)
			}
			if ci, ok := data["carbon_intensity_at_decision"].(float64); ok {
				fmt.Printf("  Carbon: %d gCO2/kWh\n", int(ci))
			}
			if ts, ok := data["decision_timestamp"].(string); ok && ts != "" {
				fmt.Printf("  Decided: %s\n", ts)
			}
			if deadline, ok := data["defer_deadline_ts"].(string); ok && deadline != "" {
				fmt.Printf("  Deferred until: %s\n", deadline)
			}

			return nil
		},
	}
}
