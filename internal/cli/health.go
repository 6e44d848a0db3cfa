package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/health")
			if err != nil {
				return fmt.Errorf("health check: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			status, _ := data["status"].(string)
			version, _ := data["version"].(string)
			uptime, _ := data["uptime"].(string)
			scheduler, _ := data["scheduler"].(string)

			fmt.Printf("Server:    %s\n", flagServer)
			fmt.Printf("Status:    %s\n", status)
			fmt.Printf("Version:   %s\n", version)
			fmt.Printf("Uptime:    %s\n", uptime)
			fmt.Printf("Scheduler: %s\n", scheduler)
			return nil
		},
	}
}
