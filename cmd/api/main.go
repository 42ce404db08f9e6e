package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"factcheck/api/internal/app"
	"factcheck/api/internal/config"
	"factcheck/api/internal/dossier"
	"factcheck/api/internal/ledger"
	"factcheck/api/internal/lock"
	"factcheck/api/internal/search"
	"factcheck/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	writerOpts := []ledger.Option{ledger.WithHashChain(cfg.HashChain)}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		locker, err := lock.NewRedisLocker(cfg.RedisURL, cfg.LockTTL)
		if err != nil {
			log.Printf("WARNING: redis lock unavailable, appends rely on head CAS only: %v", err)
		} else {
			log.Printf("Using Redis per-dossier append lock")
			defer locker.Close()
			writerOpts = append(writerOpts, ledger.WithLocker(locker))
		}
	}
	if !cfg.HashChain {
		log.Printf("Revision hash chaining disabled; ledger runs as a plain audit log")
	}
	writer := ledger.NewWriter(dataStore, writerOpts...)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)

	service := dossier.New(dataStore, writer,
		dossier.WithIDCache(cfg.IDCacheTTL),
		dossier.WithIndexer(searchService),
		dossier.WithReceiptSecret([]byte(cfg.ReceiptSecret)),
	)

	httpServer := app.NewHTTPServer(service, searchService, dataStore, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Dossier API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
