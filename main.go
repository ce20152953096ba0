// sharedshape — One payload shape shared by a server, a CLI client and a browser client.
// Author: vesaa | License: MIT | https://github.com/vesaa/sharedshape
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/vesaa/sharedshape/internal/client"
	"github.com/vesaa/sharedshape/internal/config"
	"github.com/vesaa/sharedshape/internal/frontend"
	"github.com/vesaa/sharedshape/internal/logging"
	"github.com/vesaa/sharedshape/internal/server"
)

const asciiLogo = `
  ███████╗██╗  ██╗ █████╗ ██████╗ ███████╗
  ██╔════╝██║  ██║██╔══██╗██╔══██╗██╔════╝
  ███████╗███████║███████║██████╔╝█████╗
  ╚════██║██╔══██║██╔══██║██╔═══╝ ██╔══╝
  ███████║██║  ██║██║  ██║██║     ███████╗
  ╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝     ╚══════╝
`

const version = "v0.1.0"

func printBanner(mode string) {
	fmt.Print(asciiLogo + "\n")
	fmt.Printf("  ► sharedshape %s  |  Author: vesaa  |  Mode: %s\n\n", version, mode)
}

// loadConfig reads --config when given, the default search path otherwise,
// and applies the logging settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := logging.InitLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	root := &cobra.Command{
		Use:   "sharedshape",
		Short: "sharedshape — one payload shape for server, CLI client and browser client",
		Long: `sharedshape serves a fixed JSON payload, fetches and validates it from the
command line or the browser, and manages the external UI units the browser
client embeds by reference.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "Config file (default ./config.yaml or ~/.sharedshape/config.yaml)")

	// ── server subcommand ─────────────────────────────────────────────────────
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the payload on GET /",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SERVER")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			engine := server.NewEngine(server.Options{AuthSecret: cfg.AuthSecret})
			srv := &http.Server{Addr: cfg.ServerAddr(), Handler: engine}

			fmt.Printf("  ✓ Payload → http://%s/\n", cfg.ServerAddr())
			fmt.Printf("  ✓ Health  → http://%s/healthz\n", cfg.ServerAddr())
			if cfg.AuthSecret != "" {
				fmt.Println("  ✓ Bearer auth enabled (mint tokens with \"sharedshape token\")")
			}
			fmt.Println()

			ctx, stop := signalContext(cmd)
			defer stop()
			if err := server.ListenAndServe(ctx, srv); err != nil {
				return err
			}
			fmt.Println("\n  → Shut down gracefully")
			return nil
		},
	}

	// ── client subcommand ─────────────────────────────────────────────────────
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Fetch the payload once, validate it and log it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// CLI flags override config values.
			if url, _ := cmd.Flags().GetString("url"); url != "" {
				cfg.ServerURL = url
			}
			if token, _ := cmd.Flags().GetString("token"); token != "" {
				cfg.ClientToken = token
			}
			if cmd.Flags().Changed("retries") {
				cfg.ClientRetries, _ = cmd.Flags().GetInt("retries")
			}
			if cmd.Flags().Changed("timeout") {
				cfg.ClientTimeout, _ = cmd.Flags().GetInt("timeout")
			}

			log := logging.GetLogger()
			c := client.New(client.Options{
				BaseURL: cfg.ServerURL,
				Token:   cfg.ClientToken,
				Timeout: time.Duration(cfg.ClientTimeout) * time.Second,
				Retries: cfg.ClientRetries,
				Logger:  log,
			})

			ctx, stop := signalContext(cmd)
			defer stop()
			p, err := c.Fetch(ctx)
			if err != nil {
				log.WithError(err).WithField("url", cfg.ServerURL).Error("fetch failed")
				return err
			}
			log.WithField("payload", p.Payload).Info("received payload")

			out, err := json.Marshal(p)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	clientCmd.Flags().String("url", "", "Server base URL (overrides config)")
	clientCmd.Flags().String("token", "", "Bearer token (overrides config)")
	clientCmd.Flags().Int("retries", 0, "Extra attempts after a network failure")
	clientCmd.Flags().Int("timeout", 10, "Request timeout in seconds")

	// ── ui subcommand ─────────────────────────────────────────────────────────
	uiCmd := &cobra.Command{
		Use:   "ui",
		Short: "Serve the browser client and its vendored UI units",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("UI")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			engine, err := frontend.NewEngine(frontend.Options{
				ServerURL: cfg.ServerURL,
				VendorDir: cfg.VendorDir,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.UIAddr(), Handler: engine}

			fmt.Printf("  ✓ Browser client → http://%s/\n", cfg.UIAddr())
			fmt.Printf("  ✓ Fetching from  → %s\n", cfg.ServerURL)
			fmt.Printf("  ✓ Vendored units → %s\n\n", cfg.VendorDir)

			ctx, stop := signalContext(cmd)
			defer stop()
			return server.ListenAndServe(ctx, srv)
		},
	}

	// ── token subcommand ──────────────────────────────────────────────────────
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with auth_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			tok, err := server.GenerateToken(cfg.AuthSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	tokenCmd.Flags().String("subject", "client", "Token subject")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print sharedshape version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sharedshape %s  |  Author: vesaa\n", version)
		},
	}

	root.AddCommand(serverCmd, clientCmd, uiCmd, tokenCmd, externCmd(), versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
