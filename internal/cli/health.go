package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xiaot623/carechat/internal/adapter/chatclient"
	"github.com/xiaot623/carechat/internal/config"
)

func newHealthCmd(cfg *config.ClientConfig) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := chatclient.NewClient(cfg.ServerURL).Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("server unreachable: %w", err)
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(health)
			}

			agents := make([]string, len(health.Agents))
			for i, a := range health.Agents {
				agents[i] = string(a)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n", health.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Agents: %s\n", strings.Join(agents, ", "))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}
