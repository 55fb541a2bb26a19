package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tsproxy/internal/config"
	"tsproxy/internal/engine"
	"tsproxy/internal/logging"
	"tsproxy/internal/remote"
	"tsproxy/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tsp",
	Short: "Timesheet proxy",
	Long: `tsp fronts an HR platform's timesheet API.

Run "tsp serve" to expose the /timesheet endpoints: bulk submission across a
date range (weekends skipped), range reports stitched from weekly reports and
a monthly eight-hour check. Every call forwards the caller's session Cookie.

The remaining commands talk to a running proxy.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	config.BindEnv(viper.GetViper())
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:3000", "proxy base URL (client commands)")
	rootCmd.PersistentFlags().String("cookie", "", "HR session cookie (or TSP_COOKIE)")
	rootCmd.PersistentFlags().String("config", "", "path to tsproxy.yml")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("proxy", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("cookie", rootCmd.PersistentFlags().Lookup("cookie"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(bulkCmd())
	rootCmd.AddCommand(rangeCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(weekCmd())
	rootCmd.AddCommand(dateCmd())
	rootCmd.AddCommand(lastCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(viper.GetViper())
			if err != nil {
				return err
			}
			logger, _, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			e := engine.New(cfg, remote.New(cfg.Remote.BaseURL, cfg.Remote.Timeout), logger)
			handler, err := server.New(server.Config{Engine: e, Logger: logger, CORSOrigins: cfg.Server.CORSOrigins})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving timesheet proxy", "addr", cfg.Server.Addr, "remote", cfg.Remote.BaseURL, "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config, 127.0.0.1:3000)")
	cmd.Flags().String("log-level", "", "debug, info, warn or error")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(viper.GetViper())
			if err != nil {
				return err
			}
			return yaml.NewEncoder(os.Stdout).Encode(cfg)
		},
	}
	cfgCmd.AddCommand(show)
	return cfgCmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
