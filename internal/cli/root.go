package cli

import "github.com/spf13/cobra"

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "SEO workflow orchestration service",
	}

	cmd.PersistentFlags().String("config", "config.yaml", "Path to config file")
	return cmd
}
