package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kuitang/epic-notes/internal/api"
	"github.com/kuitang/epic-notes/internal/blob"
	"github.com/kuitang/epic-notes/internal/config"
	"github.com/kuitang/epic-notes/internal/crypto"
	"github.com/kuitang/epic-notes/internal/db"
	"github.com/kuitang/epic-notes/internal/notes"
	"github.com/kuitang/epic-notes/internal/obs"
	"github.com/kuitang/epic-notes/internal/ratelimit"
	"github.com/kuitang/epic-notes/internal/web"
)

// databaseKeyVersion is mixed into the derived database key.
const databaseKeyVersion = 1

// app holds the long-lived dependencies shared by commands.
type app struct {
	db    *db.DB
	blobs blob.Store
	notes *notes.Service
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	database, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		database.Close()
		return nil, err
	}
	return &app{
		db:    database,
		blobs: blobs,
		notes: notes.NewService(database, blobs),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func openDatabase(cfg *config.Config) (*db.DB, error) {
	var key []byte
	if cfg.Encrypted() {
		master, err := crypto.ParseMasterKey(cfg.MasterKey)
		if err != nil {
			return nil, err
		}
		key = crypto.DeriveDatabaseKey(master, "notes", databaseKeyVersion)
	}
	database, err := db.Open(cfg.DatabasePath, key)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	return database, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	if cfg.BlobBackend == config.BackendS3 {
		store, err := blob.NewS3Store(ctx, cfg.S3StoreConfig())
		if err != nil {
			return nil, fmt.Errorf("open s3 blob store: %w", err)
		}
		return store, nil
	}
	store, err := blob.NewLocalStore(cfg.BlobDir)
	if err != nil {
		return nil, fmt.Errorf("open local blob store %s: %w", cfg.BlobDir, err)
	}
	return store, nil
}

// newHandler assembles every route behind the correlation and access-log
// middleware. limiter may be nil to disable write rate limiting.
func newHandler(svc *notes.Service, limiter *ratelimit.RateLimiter, baseURL string) (http.Handler, error) {
	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}

	var writeLimit func(http.Handler) http.Handler
	if limiter != nil {
		writeLimit = ratelimit.Middleware(limiter, ratelimit.ByClientIP)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", obs.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := svc.CountUsers(r.Context()); err != nil {
			obs.From(r.Context()).Error("health_check_failed", "pkg", "main", "error", err)
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	api.NewHandler(svc, baseURL).RegisterRoutes(mux, writeLimit)
	web.NewWebHandler(renderer, svc).RegisterRoutes(mux, writeLimit)

	return obs.RequestContextMiddleware(obs.AccessLogMiddleware("http", mux)), nil
}
