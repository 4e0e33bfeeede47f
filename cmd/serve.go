package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance HTTP server",
	Long: `Start the attendance HTTP server.
Check-in terminals post face images or embeddings to /api/v1/attendance,
administrators enroll subjects through /api/v1/subjects.

Storage is PostgreSQL when DATABASE_URL is set, otherwise SQLite at
SQLITE_PATH. Use --memory for a throwaway in-memory store.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("memory", false, "Use an in-memory store (data is lost on exit)")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, mustGetBool(cmd, "memory"))
	if err != nil {
		return err
	}
	defer a.Close()

	if g, err := a.gallery.Refresh(ctx); err != nil {
		a.logger.Warn("initial gallery load failed, retrying on first check-in", "error", err)
	} else {
		a.logger.Info("gallery loaded", "subjects", g.Len())
	}

	port, host := resolveServeHostPort(cmd)
	server, err := web.NewServer(a.cfg, port, host, web.Services{
		Attendance: a.engine,
		Subjects:   a.subjects,
		Evidence:   a.evidence,
		Gatherer:   a.registry,
		Ready:      a.ready,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Starting Face Attendance on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
