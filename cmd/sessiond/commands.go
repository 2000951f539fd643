package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/sessiond"
	"github.com/loykin/sessiond/internal/history"
	"github.com/loykin/sessiond/internal/history/factory"
	"github.com/loykin/sessiond/pkg/client"
)

func createRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sessiond",
		Short: "Session resource manager for autonomous agent sessions",
		Long: "sessiond tracks concurrently running agent sessions in a host-wide,\n" +
			"file-locked registry and enforces session and process-count limits.",
		SilenceUsage: true,
	}
}

func newLocalManager(registryPath string) (*sessiond.Manager, error) {
	return sessiond.NewWithOptions(sessiond.Options{RegistryPath: registryPath})
}

func createRegisterCommand(f *RegisterFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a session for a workspace and print its id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.APIUrl != "" {
				cl := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
				id, err := cl.Register(cmd.Context(), f.RepoPath, f.Estimated)
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			}
			mgr, err := newLocalManager(f.Registry)
			if err != nil {
				return err
			}
			id, err := mgr.RegisterSession(f.RepoPath, f.Estimated)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.RepoPath, "repo", "", "workspace path the session belongs to")
	cmd.Flags().IntVar(&f.Estimated, "estimated-processes", 0, "expected child process count (default 15)")
	addCommonFlags(cmd, &f.Registry, &f.APIUrl, &f.APITimeout)
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func createUnregisterCommand(f *UnregisterFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unregister",
		Short: "Remove a session by id (no error if already gone)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.APIUrl != "" {
				cl := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
				return cl.Unregister(cmd.Context(), f.SessionID)
			}
			mgr, err := newLocalManager(f.Registry)
			if err != nil {
				return err
			}
			return mgr.UnregisterSession(f.SessionID)
		},
	}
	cmd.Flags().StringVar(&f.SessionID, "session-id", "", "session id to remove")
	addCommonFlags(cmd, &f.Registry, &f.APIUrl, &f.APITimeout)
	_ = cmd.MarkFlagRequired("session-id")
	return cmd
}

func createStatusCommand(f *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current resource status as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.APIUrl != "" {
				cl := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
				var (
					st  client.Status
					err error
				)
				if f.Check {
					st, err = cl.Check(cmd.Context(), f.Operation)
				} else {
					st, err = cl.Status(cmd.Context())
				}
				if err != nil {
					return err
				}
				return printJSON(st)
			}
			mgr, err := newLocalManager(f.Registry)
			if err != nil {
				return err
			}
			if f.Check {
				st, err := mgr.CheckResourceLimits(f.Operation)
				if err != nil {
					return err
				}
				return printJSON(st)
			}
			return printJSON(mgr.ResourceStatus())
		},
	}
	cmd.Flags().BoolVar(&f.Check, "check", false, "enforce limits (non-zero exit when a hard limit is hit)")
	cmd.Flags().StringVar(&f.Operation, "operation", "general", "operation label for --check")
	addCommonFlags(cmd, &f.Registry, &f.APIUrl, &f.APITimeout)
	return cmd
}

func createCleanupCommand(f *CleanupFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Force a stale-session sweep and print the removed count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.APIUrl != "" {
				cl := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
				n, err := cl.Cleanup(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Println(n)
				return nil
			}
			mgr, err := newLocalManager(f.Registry)
			if err != nil {
				return err
			}
			n, err := mgr.CleanupStaleSessions()
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	addCommonFlags(cmd, &f.Registry, &f.APIUrl, &f.APITimeout)
	return cmd
}

func createServeCommand(f *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sessiond HTTP daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "", "TOML config file")
	cmd.Flags().StringVar(&f.Listen, "listen", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&f.BasePath, "base-path", "/api", "API base path")
	cmd.Flags().StringVar(&f.MetricsListen, "metrics-listen", "", "Prometheus /metrics listen address (disabled when empty)")
	cmd.Flags().StringVar(&f.Registry, "registry", "", "registry file path (default under the OS temp dir)")
	cmd.Flags().StringSliceVar(&f.HistoryDSNs, "history", nil, "history sink DSNs (sqlite path, postgres://, clickhouse://)")
	cmd.Flags().StringVar(&f.LogPath, "log-file", "", "rotating log file (stderr when empty)")
	cmd.Flags().StringVar(&f.LogLevel, "log-level", "info", "log level")
	return cmd
}

func runServe(ctx context.Context, f *ServeFlags) error {
	sc, err := resolveServeConfig(f)
	if err != nil {
		return err
	}

	lg, closer, err := sessiond.NewLogger(sessiond.LogConfig{Path: sc.logPath, Level: sc.logLevel})
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	mgr, err := sessiond.NewWithOptions(sessiond.Options{
		RegistryPath: sc.registry,
		Config:       sc.resources,
		Logger:       lg,
	})
	if err != nil {
		return err
	}

	var sinks []sessiond.HistorySink
	for _, dsn := range sc.historyDSNs {
		sink, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			return fmt.Errorf("history sink %q: %w", dsn, err)
		}
		sinks = append(sinks, sink)
		defer closeSink(sink)
	}
	if len(sinks) > 0 {
		mgr.SetHistorySinks(sinks...)
	}

	if err := sessiond.RegisterMetricsDefault(); err != nil {
		return err
	}
	if sc.metricsListen != "" {
		go func() {
			if err := sessiond.ServeMetrics(sc.metricsListen); err != nil {
				lg.Error("metrics server stopped", "error", err)
			}
		}()
	}

	srv, err := sessiond.NewHTTPServer(sc.listen, sc.basePath, mgr)
	if err != nil {
		return err
	}
	lg.Info("sessiond serving", "listen", sc.listen, "base_path", sc.basePath, "registry", mgr.RegistryPath())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		lg.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}
	return srv.Close()
}

func closeSink(s history.Sink) {
	if c, ok := s.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func addCommonFlags(cmd *cobra.Command, registry, apiURL *string, apiTimeout *time.Duration) {
	cmd.Flags().StringVar(registry, "registry", "", "registry file path (default under the OS temp dir)")
	cmd.Flags().StringVar(apiURL, "api-url", "", "sessiond daemon URL; when set the command goes through the API")
	cmd.Flags().DurationVar(apiTimeout, "api-timeout", 10*time.Second, "API request timeout")
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
