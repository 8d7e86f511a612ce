package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagecap/internal/server"
)

var (
	serveHost        string
	servePort        string
	serveSwaggerSpec string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pagecap server",
	Long: `Start the pagecap HTTP server.

This opens the browser session (launching Chrome, or attaching to one via
browser.remote_url) and serves the API and control panel. When the server
shuts down (via Ctrl+C or SIGTERM), an active run is abandoned and a
launched browser is closed.

The server provides:
  - /            - Control panel
  - /health      - Basic server health check
  - /ready       - Readiness check (includes the browser session)
  - /api/job/... - Start, stop and follow capture runs
  - /swagger     - API documentation

Examples:
  pagecap serve                    # Start on default port 8080
  pagecap serve --port 3000        # Start on custom port
  pagecap serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, mgr, logger, err := setup()
		if err != nil {
			return err
		}

		srv, err := server.New(server.Config{
			Host:            serveHost,
			Port:            servePort,
			ConfigManager:   mgr,
			Home:            h,
			SwaggerSpecPath: serveSwaggerSpec,
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")
	serveCmd.Flags().StringVar(&serveSwaggerSpec, "swagger-spec", "", "Serve swagger.json from this file instead of the built-in copy")

	rootCmd.AddCommand(serveCmd)
}
