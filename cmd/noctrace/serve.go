package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/noctrace"
	"pkt.systems/noctrace/httpapi"
	"pkt.systems/noctrace/internal/appconfig"
	"pkt.systems/noctrace/internal/orchestrator"
	"pkt.systems/pslog"
)

const stopTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var cfgPath string
	var addr string
	var baseURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an investigation session over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if baseURL != "" {
				cfg.Orchestrator.BaseURL = baseURL
			}
			client, err := orchestrator.New(cfg.ClientSettings())
			if err != nil {
				return err
			}
			logger.Info("orchestrator configured", "base_url", cfg.Orchestrator.BaseURL, "scenario", cfg.Session.Scenario)

			srv, err := noctrace.New(noctrace.ServerConfig{
				Session:    cfg.SessionSettings(),
				HTTP:       httpapi.Config{Addr: cfg.HTTP.Addr},
				HubHistory: cfg.HTTP.HubHistory,
			}, noctrace.ServerDeps{
				Orchestrator: client,
				History:      client,
				Logger:       logger,
			}, noctrace.WithHTTP())
			if err != nil {
				return err
			}
			if err := srv.Start(ctx); err != nil {
				return err
			}
			waitErr := srv.Wait()
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil && waitErr == nil {
				waitErr = err
			}
			return waitErr
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path (default ~/.noctrace/config.yaml)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides http.addr)")
	cmd.Flags().StringVar(&baseURL, "orchestrator", "", "orchestrator base URL (overrides orchestrator.base_url)")
	return cmd
}
