package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Divas-Gupta30/agentgate/internal/config"
	"github.com/Divas-Gupta30/agentgate/internal/graph"
	"github.com/Divas-Gupta30/agentgate/internal/ingestion"
	"github.com/Divas-Gupta30/agentgate/internal/logging"
	"github.com/Divas-Gupta30/agentgate/internal/server"
)

var envFile string

func main() {
	root := &cobra.Command{
		Use:           "agentgate",
		Short:         "Route requests to task agents and gate every answer behind validation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.AddCommand(serveCmd(), submitCmd(), capabilitiesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*app, *config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

func serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cfg, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.logger.Sync()
			defer a.Close()

			if port == "" {
				port = cfg.Port
			}
			srv := server.New(a.service, a.logger.Named("http"), a.serverOptions()...)
			return srv.ListenAndServe(ctx, ":"+port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default from PORT)")
	return cmd
}

func submitCmd() *cobra.Command {
	var (
		capability string
		params     map[string]string
		dir        string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Run one request through its workflow and print the outcome",
		Example: `  agentgate submit -c weather -p city=Paris -p unit=celsius
  agentgate submit -c exchange_rate -p base=USD -p target=EUR
  agentgate submit -c summarize_document -p path=report.pdf -p max_length=short
  agentgate submit -c summarize_document --dir ./docs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, _, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.logger.Sync()
			defer a.Close()

			reqs, err := buildRequests(graph.Capability(capability), params, dir)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			var failed []error
			for _, req := range reqs {
				out, err := a.service.Submit(ctx, req)
				if err != nil {
					a.logger.Error("submission failed", zap.Any("params", req.Params), zap.Error(err))
					failed = append(failed, err)
					continue
				}
				if err := enc.Encode(out); err != nil {
					return err
				}
			}
			return errors.Join(failed...)
		},
	}
	cmd.Flags().StringVarP(&capability, "capability", "c", "", "capability to request")
	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "request param as key=value (repeatable)")
	cmd.Flags().StringVar(&dir, "dir", "", "submit every .pdf, .txt and .md file under this directory as path=<file>")
	_ = cmd.MarkFlagRequired("capability")
	return cmd
}

func buildRequests(capability graph.Capability, params map[string]string, dir string) ([]graph.Request, error) {
	base := make(map[string]any, len(params))
	for k, v := range params {
		base[strings.TrimSpace(k)] = v
	}
	if dir == "" {
		return []graph.Request{{Capability: capability, Params: base}}, nil
	}

	files, err := ingestion.LoadLocalFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no supported documents under %s", dir)
	}
	reqs := make([]graph.Request, 0, len(files))
	for _, f := range files {
		p := make(map[string]any, len(base)+1)
		for k, v := range base {
			p[k] = v
		}
		p["path"] = f
		reqs = append(reqs, graph.Request{Capability: capability, Params: p})
	}
	return reqs, nil
}

func capabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List routable capabilities and their workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			router := graph.NewRouter()
			w := cmd.OutOrStdout()
			for _, c := range router.Capabilities() {
				def, _ := router.Route(graph.Request{Capability: c})
				fmt.Fprintf(w, "%-20s %s\n", c, def.Name)
			}
			return nil
		},
	}
}
