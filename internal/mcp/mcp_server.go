// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pkmeta/metaspot/core"
	"github.com/pkmeta/metaspot/internal/contract"
)

// DepsOpener opens the pipeline collaborators for one tool call. The returned func
// releases them.
type DepsOpener func(ctx context.Context, cfg *contract.Config, withSink bool) (core.Deps, func(), error)

// NewMCPServer initializes and configures the metaspot MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, open DepsOpener) *server.MCPServer {
	s := server.NewMCPServer(
		"Metaspot Meta Analysis Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		open:    open,
	}

	// --- 1. Tool: run_meta_analysis ---
	s.AddTool(mcp.NewTool("run_meta_analysis",
		mcp.WithDescription("Cluster recent ranked matches by team composition and report the archetypes of the meta."),
		mcp.WithString("since", mcp.Description("Only use matches after this point: ISO8601 date or time ago (e.g. '15 days').")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of matches to load.")),
		mcp.WithString("perplexity", mcp.Description("t-SNE perplexity.")),
		mcp.WithString("epsilon", mcp.Description("DBSCAN neighborhood radius.")),
		mcp.WithString("min_samples", mcp.Description("DBSCAN minimum neighborhood size.")),
		mcp.WithNumber("seed", mcp.Description("Random seed for the projection.")),
		mcp.WithBoolean("write_report", mcp.Description("Replace the stored report in the configured sink. Defaults to false.")),
	), h.handleRunMetaAnalysis)

	// --- 2. Tool: sweep_parameters ---
	s.AddTool(mcp.NewTool("sweep_parameters",
		mcp.WithDescription("Project recent matches once per perplexity and cluster them for every combination of DBSCAN parameters."),
		mcp.WithString("epsilon", mcp.Description("Comma-separated neighborhood radii (e.g. '2,3,4')."), mcp.Required()),
		mcp.WithString("min_samples", mcp.Description("Comma-separated minimum neighborhood sizes (e.g. '5,10')."), mcp.Required()),
		mcp.WithString("perplexity", mcp.Description("Comma-separated t-SNE perplexities (e.g. '10,20,30').")),
		mcp.WithString("since", mcp.Description("Only use matches after this point.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of matches to load.")),
		mcp.WithNumber("seed", mcp.Description("Random seed for the projection.")),
	), h.handleSweepParameters)

	return s
}

// StartMCPServer starts the metaspot MCP server on stdio.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, open DepsOpener) error {
	s := NewMCPServer(baseCfg, open)
	return server.ServeStdio(s)
}
