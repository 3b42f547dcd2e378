package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/zoomstitch/internal/server"
	"github.com/kiesman99/zoomstitch/internal/stitcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for artwork stitching",
	Long: `Start an HTTP server that returns the stitched image of an artwork page.

GET /api/image?url=<page-url> answers with the full-resolution PNG.
The same endpoint is available under /api/v1, next to /api/v1/health.

Examples:
  # Start server on default port 8080
  zoomstitch serve

  # Start server on custom port
  zoomstitch serve --port 3000

  # Start server with custom bind address
  zoomstitch serve --bind 0.0.0.0 --port 8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 120*time.Second, "request timeout")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
}

func runServe(cmd *cobra.Command, args []string) error {
	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")

	addr := fmt.Sprintf("%s:%d", bind, port)

	opts := stitcherOptions()
	apiServer := server.NewServer(version, stitcher.New(opts))

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     server.NewRouter(apiServer, timeout),
		ReadTimeout: timeout,
		// the image is written after the handler timeout fires
		WriteTimeout: timeout + 10*time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Server shutdown error")
		}
	}()

	log.WithFields(log.Fields{
		"addr":        addr,
		"concurrency": opts.Concurrency,
		"tile_size":   opts.TileSize,
	}).Info("Starting zoomstitch server")
	fmt.Fprintf(cmd.ErrOrStderr(), "Index page: http://%s/\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Health check: http://%s/api/v1/health\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Image endpoint: http://%s/api/image?url=<page-url>\n", addr)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}
