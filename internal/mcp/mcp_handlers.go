package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pkmeta/metaspot/core"
	"github.com/pkmeta/metaspot/internal/contract"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	open    DepsOpener
}

// configFor applies the request arguments to a copy of the base config.
func (h *toolHandler) configFor(request mcp.CallToolRequest) (*contract.Config, error) {
	cfg := h.baseCfg.Clone()
	err := contract.RevalidateAlgorithm(cfg, contract.AlgorithmOverrides{
		Since:      request.GetString("since", ""),
		Limit:      request.GetInt("limit", 0),
		Perplexity: request.GetString("perplexity", ""),
		Epsilon:    request.GetString("epsilon", ""),
		MinSamples: request.GetString("min_samples", ""),
		Seed:       int64(request.GetInt("seed", 0)),
	})
	return cfg, err
}

func toolResultJSON(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleRunMetaAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.configFor(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	deps, closeDeps, err := h.open(ctx, cfg, request.GetBool("write_report", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot open data sources: %v", err)), nil
	}
	defer closeDeps()

	report, err := core.RunMetaAnalysis(ctx, cfg, deps)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("meta analysis failed: %v", err)), nil
	}
	return toolResultJSON(report)
}

func (h *toolHandler) handleSweepParameters(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if request.GetString("epsilon", "") == "" || request.GetString("min_samples", "") == "" {
		return mcp.NewToolResultError("epsilon and min_samples are required"), nil
	}
	cfg, err := h.configFor(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	deps, closeDeps, err := h.open(ctx, cfg, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot open data sources: %v", err)), nil
	}
	defer closeDeps()

	results, err := core.ExecuteSweep(ctx, cfg, deps)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("sweep failed: %v", err)), nil
	}
	return toolResultJSON(results)
}
