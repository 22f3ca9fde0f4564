package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/billfinder/internal/tool"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the discover_bills tool over MCP on stdio",
		Long: `Run an MCP server on stdin/stdout.

The server exposes one tool, discover_bills, which runs discovery over
emails and transactions passed inline by the client. No configured
account or token is read.`,
		RunE: runMCP,
	}
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			slog.Warn("Failed to close extraction cache", "error", err)
		}
	}()

	handler := tool.NewHandler(p.extractor, p.detector, p.merger, p.enricher, p.discovery)
	server := tool.NewServer(version, handler)

	slog.Info("Serving MCP on stdio", "version", version)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server stopped: %w", err)
	}
	return nil
}
