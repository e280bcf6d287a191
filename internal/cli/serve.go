package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/ppiankov/factorwatch/internal/httpapi"
	"github.com/ppiankov/factorwatch/internal/policy"
	"github.com/ppiankov/factorwatch/internal/ratelimit"
	"github.com/ppiankov/factorwatch/internal/server"
	"github.com/ppiankov/factorwatch/internal/service"
)

var (
	servePort     int
	serveHTTPAddr string
	serveAuditLog string
	serveNoReload bool
	serveRateMax  int
	serveRateWin  time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 50051, "gRPC listen port")
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", ":8080", "HTTP listen address (empty disables the HTTP API)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to audit log JSONL file")
	serveCmd.Flags().BoolVar(&serveNoReload, "no-reload", false, "Disable hot reload of the policy file")
	serveCmd.Flags().IntVar(&serveRateMax, "rate-limit", 0, "Max HTTP decisions per client per --rate-window (0 = unlimited)")
	serveCmd.Flags().DurationVar(&serveRateWin, "rate-window", time.Minute, "HTTP rate limit window")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the selection server",
	Long: "Runs factorwatch as a decision server over gRPC and HTTP.\n" +
		"Both transports share one policy; editing the policy file reloads it in place.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("log-level") {
		logLevel = "info"
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	svc, err := service.New(service.Config{
		PolicyPath:   policyPath,
		ProfileName:  profileName,
		AuditLogPath: serveAuditLog,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer svc.Close()

	sup := suture.New("factorwatch", suture.Spec{
		EventHook: func(e suture.Event) {
			logger.Warn("supervisor event", zap.String("event", e.String()))
		},
	})
	sup.Add(server.New(svc, server.Config{Port: servePort, Logger: logger}))
	if serveHTTPAddr != "" {
		sup.Add(httpapi.New(svc, httpapi.Config{
			Addr:      serveHTTPAddr,
			RateLimit: ratelimit.Limit{MaxRequests: serveRateMax, Window: serveRateWin},
			Logger:    logger,
		}))
	}
	if !serveNoReload {
		path := policyPath
		if path == "" {
			path = policy.DefaultPath()
		}
		reloader := server.NewReloader(svc, []string{path}, logger)
		if len(reloader.Paths()) > 0 {
			sup.Add(reloader)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := svc.Reload(); err != nil {
					logger.Error("reload on SIGHUP failed", zap.Error(err))
				}
			}
		}
	}()

	fmt.Fprintf(os.Stderr, "factorwatch listening: grpc :%d", servePort)
	if serveHTTPAddr != "" {
		fmt.Fprintf(os.Stderr, ", http %s", serveHTTPAddr)
	}
	fmt.Fprintln(os.Stderr)
	if profileName != "" {
		fmt.Fprintf(os.Stderr, "Profile: %s\n", profileName)
	}
	fmt.Fprintf(os.Stderr, "Policy hash: %s\n", svc.PolicyHash())

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(os.Stderr, "\nShutting down selection server...")
	return nil
}
