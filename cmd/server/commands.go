package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/diewo77/go-approvisionnements/internal/cache"
	"github.com/diewo77/go-approvisionnements/internal/config"
	"github.com/diewo77/go-approvisionnements/internal/db"
	"github.com/diewo77/go-approvisionnements/internal/export"
	"github.com/diewo77/go-approvisionnements/internal/jobs"
	"github.com/diewo77/go-approvisionnements/internal/services"
	"github.com/diewo77/go-approvisionnements/view"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownGrace = 10 * time.Second

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "approvisionnements",
	Short:        "Procurement order management: web server and maintenance commands",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		setupLogging(cfg.Log)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("out", "o", "", "destination .xlsx file")
	exportCmd.Flags().String("from", "", "first order date (YYYY-MM-DD)")
	exportCmd.Flags().String("to", "", "last order date (YYYY-MM-DD)")
	exportCmd.Flags().String("q", "", "reference or supplier name fragment")
	exportCmd.Flags().Uint("supplier", 0, "supplier id")
	exportCmd.Flags().String("lang", "fr", "header language (fr|en)")
	_ = exportCmd.MarkFlagRequired("out")

	reconcileCmd.Flags().Bool("fix", false, "rewrite mismatching totals")
	cronCmd.Flags().StringP("job", "j", "", "run a single job once and exit")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, reconcileCmd, exportCmd, cronCmd)
}

// setupLogging configures the global zerolog logger.
func setupLogging(c config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}

// openDB connects to the configured database, applying the schema when
// MIGRATIONS is set or the driver is sqlite.
func openDB(ctx context.Context) (*gorm.DB, error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.App.Migrations || cfg.Database.Driver == config.DriverSQLite {
		if err := db.Migrate(conn, true); err != nil {
			closeDB(conn)
			return nil, err
		}
	}
	if cfg.App.Seed {
		if _, err := db.Seed(ctx, conn); err != nil {
			closeDB(conn)
			return nil, err
		}
	}
	return conn, nil
}

func closeDB(conn *gorm.DB) {
	if sqlDB, err := conn.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// serve
// ─────────────────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server and the scheduled jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		conn, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer closeDB(conn)

		store, err := cache.New(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return err
		}
		if c, ok := store.(io.Closer); ok {
			defer c.Close()
		}

		routerCfg := NewRouterConfig(conn, store, cfg.Cache.TTL)
		scheduler := jobs.NewScheduler()
		if err := jobs.RegisterAll(scheduler, jobs.Builtin(routerCfg.Reconciler, routerCfg.Catalog, cfg.App.ReconcileSchedule)); err != nil {
			return err
		}
		view.SetDevMode(cfg.App.Dev)

		srv := &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      NewApp(conn, routerCfg),
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info().Str("port", cfg.Server.Port).Bool("dev", cfg.App.Dev).Msg("server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Info().Msg("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		if err := g.Wait(); err != nil {
			return err
		}
		log.Info().Msg("server stopped gracefully")
		return nil
	},
}

// ─────────────────────────────────────────────────────────────────────────────
// maintenance
// ─────────────────────────────────────────────────────────────────────────────

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer closeDB(conn)
		if err := db.Migrate(conn, true); err != nil {
			return err
		}
		log.Info().Msg("migrations completed successfully")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the sample suppliers, articles and orders into an empty database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer closeDB(conn)
		created, err := db.Seed(cmd.Context(), conn)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintln(cmd.OutOrStdout(), "sample data inserted")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "database already populated, nothing to do")
		}
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "orders:reconcile",
	Short: "Check every order total against its lines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fix, _ := cmd.Flags().GetBool("fix")
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer closeDB(conn)

		report, err := services.NewReconciler(conn).Run(cmd.Context(), fix)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range report.Mismatches {
			fmt.Fprintf(out, "%s: stored %s, lines %s\n", m.Reference, m.Stored.String(), m.Computed.String())
		}
		fmt.Fprintf(out, "checked %d orders, %d mismatches, %d fixed\n", report.Checked, len(report.Mismatches), report.Fixed)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "orders:export",
	Short: "Write the filtered order listing to an XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		out, _ := flags.GetString("out")
		lang, _ := flags.GetString("lang")
		req := services.ListingRequest{}
		req.Search, _ = flags.GetString("q")
		req.SupplierID, _ = flags.GetUint("supplier")
		for name, dst := range map[string]**time.Time{"from": &req.DateFrom, "to": &req.DateTo} {
			raw, _ := flags.GetString(name)
			if raw == "" {
				continue
			}
			d, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return fmt.Errorf("--%s: %w", name, err)
			}
			*dst = &d
		}

		conn, err := db.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer closeDB(conn)

		listing := services.NewListingService(conn, services.NewCatalogService(conn, cache.NewMemory(), cfg.Cache.TTL))
		orders, stats, err := listing.All(cmd.Context(), req)
		if err != nil {
			return err
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := export.Write(f, lang, orders, stats); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d orders written to %s\n", len(orders), out)
		return nil
	},
}

var cronCmd = &cobra.Command{
	Use:   "cron:start",
	Short: "Run the scheduled jobs, or a single job with --job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		conn, err := db.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer closeDB(conn)
		store, err := cache.New(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return err
		}
		if c, ok := store.(io.Closer); ok {
			defer c.Close()
		}

		scheduler := jobs.NewScheduler()
		catalog := services.NewCatalogService(conn, store, cfg.Cache.TTL)
		if err := jobs.RegisterAll(scheduler, jobs.Builtin(services.NewReconciler(conn), catalog, cfg.App.ReconcileSchedule)); err != nil {
			return err
		}

		if name, _ := cmd.Flags().GetString("job"); name != "" {
			if err := scheduler.RunOnce(ctx, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s done\n", strings.ToLower(name))
			return nil
		}
		return scheduler.Run(ctx)
	},
}
