package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/abhisek/pathfinder/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.cfg.HTTP.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}
		if a.cfg.HTTP.Mode != "" {
			gin.SetMode(a.cfg.HTTP.Mode)
		}

		h := httpapi.NewHandler(httpapi.Deps{
			Generator:   a.engine,
			Adjuster:    a.adjust,
			Assessments: a.store.Assessments(),
			Patterns:    a.store.Patterns(),
			Profiles:    a.profiles,
		}, a.log)
		router := httpapi.NewRouter(h, a.metrics, a.log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return httpapi.Serve(ctx, addr, router, a.log)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
}
