package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

type serverFlags struct {
	dbPath    string
	port      string
	staticDir string
	schema    string
	verbose   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &serverFlags{}
	cmd := &cobra.Command{
		Use:           "sprocheck-server",
		Short:         "Serve sprocheck reports over a JSON API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.dbPath, "db", "", "path to the report database written by sprocheck check --sqlite (env DB_PATH)")
	cmd.Flags().StringVar(&f.port, "port", "", "HTTP port (env PORT, default 8080)")
	cmd.Flags().StringVar(&f.staticDir, "static", "", "directory for SPA static files (env STATIC_DIR)")
	cmd.Flags().StringVar(&f.schema, "default-schema", "", "schema of bare procedure names in lookups; match the checker's default_schema (env DEFAULT_SCHEMA, default dbo)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log every request")
	return cmd
}

// envDefault returns v, else the environment variable key, else def.
func envDefault(v, key, def string) string {
	if v != "" {
		return v
	}
	if e := os.Getenv(key); e != "" {
		return e
	}
	return def
}

func serve(ctx context.Context, f *serverFlags) error {
	dbPath := envDefault(f.dbPath, "DB_PATH", "")
	if dbPath == "" {
		return errors.New("DB path required: set --db or DB_PATH")
	}
	port := envDefault(f.port, "PORT", "8080")
	staticDir := envDefault(f.staticDir, "STATIC_DIR", "")

	level := zerolog.InfoLevel
	if f.verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger().Level(level)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	app := NewApp(db, log, staticDir)
	app.db.DefaultSchema = envDefault(f.schema, "DEFAULT_SCHEMA", "dbo")
	// A database written before any run still serves empty lists.
	if err := app.db.EnsureSchema(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("db", dbPath).Msgf("Listening on http://localhost:%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("Bye")
	return nil
}
