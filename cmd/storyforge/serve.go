package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/storyforge/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve read-only job status over HTTP",
	RunE:  serve,
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStores(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	app := api.NewApp(api.NewHandler(st.results, st.ckpt, st.journal))

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			log.Printf("[API] shutdown: %v", err)
		}
	}()

	log.Printf("[API] listening on %s (db=%s)", cfg.API.Addr, cfg.DBPath)
	return app.Listen(cfg.API.Addr)
}
