package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	fwmcp "github.com/ppiankov/factorwatch/internal/mcp"
	"github.com/ppiankov/factorwatch/internal/service"
)

var mcpAuditLog string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Path to audit log JSONL file")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs factorwatch as an MCP (Model Context Protocol) server over stdio.\nExposes tools: factorwatch_decide, factorwatch_derive, factorwatch_factors.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	svc, err := service.New(service.Config{
		PolicyPath:   policyPath,
		ProfileName:  profileName,
		AuditLogPath: mcpAuditLog,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer svc.Close()

	srv := fwmcp.New(svc, fwmcp.Config{Version: version, Logger: logger})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "factorwatch MCP server running on stdio")
	if profileName != "" {
		fmt.Fprintf(os.Stderr, "Profile: %s\n", profileName)
	}
	return srv.Run(ctx)
}
