package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/celerix-dev/celerix-ledger/internal/api"
	"github.com/celerix-dev/celerix-ledger/internal/audit"
	"github.com/celerix-dev/celerix-ledger/internal/config"
	"github.com/celerix-dev/celerix-ledger/internal/console"
	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/internal/ledger"
	"github.com/celerix-dev/celerix-ledger/internal/logger"
	"github.com/celerix-dev/celerix-ledger/internal/vault"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "ledgerd",
	Short: "Household finance ledger daemon",
	Long: `ledgerd serves the ledger HTTP API and, when console.port is set,
the read-only inspection console.

Settings come from ledger.toml, .env files and LEDGER_* variables.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().String("config", "", "extra directory to search for ledger.toml")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Log)
	defer log.Sync()

	log.Info("starting ledger daemon", zap.String("env", cfg.App.Env), zap.String("data", cfg.Data.Path()))

	// 1. Scaffold directories
	for _, dir := range []string{cfg.Data.Dir, cfg.Backup.Dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("scaffold %s: %w", dir, err)
		}
	}

	// 2. Open the document and build the ledger
	doc, existed, err := engine.Open(cfg.Data.Path(), log.Named("engine"))
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	a := audit.New(doc, audit.SystemClock{}, log.Named("audit"))
	l := ledger.New(a, ledger.Options{JWTSecret: cfg.JWT.Secret, JWTTTL: cfg.JWT.TTL}, log)

	if !existed {
		planted, err := l.Seed()
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		log.Info("new document seeded", zap.Int("records", planted))
	}
	if cfg.JWT.Secret == "" {
		log.Warn("jwt.secret is empty: logins are disabled")
	}

	key, err := vault.ParseKey(cfg.Backup.Key)
	if err != nil {
		return fmt.Errorf("backup.key: %w", err)
	}
	backups := l.NewBackups(cfg.Backup.Dir, key)

	// 3. Inspection console
	var cons *console.Console
	errCh := make(chan error, 2)
	if cfg.Console.Port != "" {
		cons = console.New(doc, log.Named("console"))
		if cfg.Console.TLS {
			cert, err := vault.GenerateSelfSignedCert()
			if err != nil {
				return fmt.Errorf("console certificate: %w", err)
			}
			cons.SetCertificate(cert)
		}
		go func() {
			if err := cons.Listen(cfg.Console.Port); err != nil {
				errCh <- fmt.Errorf("console: %w", err)
			}
		}()
	}

	// 4. HTTP API
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           api.NewRouter(&api.Handler{Ledger: l, Backups: backups, Log: log.Named("api")}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	// 5. Wait for a signal or a failed listener
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-errCh:
		log.Error("listener failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if cons != nil {
		cons.Stop()
	}
	log.Info("ledger daemon stopped")
	return runErr
}
