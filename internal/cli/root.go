// Package cli implements dossierctl, the operator tool for migrations and
// ledger maintenance.
package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"factcheck/api/internal/config"
	"factcheck/api/internal/dossier"
	"factcheck/api/internal/ledger"
	"factcheck/api/internal/store"
)

var (
	databaseURL   string
	migrationsDir string
	timeout       time.Duration
	asJSON        bool
)

var rootCmd = &cobra.Command{
	Use:   "dossierctl",
	Short: "Operate the dossier revision ledger",
	Long: `dossierctl applies schema migrations and maintains dossier ledgers:
verifying hash chains, recomputing counts, archiving chain snapshots and
rebuilding the search index.

Connection settings default to the same environment variables the API uses.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cfg := config.Load()
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", cfg.DatabaseURL, "Postgres connection URL")
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "migrations", cfg.MigrationsDir, "migrations directory")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall command timeout")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print machine-readable JSON")
}

// runtime is the wiring shared by commands that touch the database.
type runtime struct {
	cfg     config.Config
	db      *sql.DB
	store   *store.PostgresStore
	service *dossier.Service
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg := config.Load()
	db, err := store.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	dataStore := store.NewPostgresStore(db)
	writer := ledger.NewWriter(dataStore, ledger.WithHashChain(cfg.HashChain))
	service := dossier.New(dataStore, writer,
		dossier.WithIDCache(cfg.IDCacheTTL),
		dossier.WithReceiptSecret([]byte(cfg.ReceiptSecret)),
	)
	return &runtime{cfg: cfg, db: db, store: dataStore, service: service}, nil
}

func (r *runtime) Close() error {
	return r.db.Close()
}

// withRuntime opens the database for the duration of fn under the command
// timeout.
func withRuntime(fn func(ctx context.Context, rt *runtime) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
