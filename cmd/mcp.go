package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pkmeta/metaspot/internal/mcp"
)

// mcpCmd represents the mcp command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the metaspot MCP server",
	Long: `Launch an MCP server on stdio that lets AI agents run meta analyses and
parameter sweeps through standard tools. Progress logs stay on stderr.`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		return mcp.StartMCPServer(rootCtx, cfg, openDeps)
	},
}
