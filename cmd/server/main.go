package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"restart/internal/adapters/backend"
	emailPkg "restart/internal/adapters/email"
	web "restart/internal/adapters/http"
	"restart/internal/adapters/http/perf"
	"restart/internal/adapters/i18n"
	kioskrt "restart/internal/adapters/kiosk"
	"restart/internal/adapters/metrics"
	"restart/internal/adapters/storage"
	auditStore "restart/internal/adapters/storage/audit"
	deviceStore "restart/internal/adapters/storage/device"
	"restart/internal/adapters/ws"
	"restart/internal/application/orchestrators"
	"restart/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// auditRetentionInterval is how often old audit events are purged.
const auditRetentionInterval = 6 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// WAL mode, foreign keys and busy timeout on every connection
	dsn := cfg.Database.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}
	if err := storage.MigrateDB(db, cfg.Database.Path); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	collector := perf.NewCollector(perf.DefaultRingSize)
	m := metrics.New()
	timedDB := storage.NewTimedDB(db, collector, m.ObserveQuery, cfg.Database.SlowQuery)
	audits := auditStore.NewSQLiteStore(timedDB)
	devices := deviceStore.NewSQLiteStore(timedDB)

	catalog, err := i18n.Default()
	if err != nil {
		log.Fatalf("failed to load translations: %v", err)
	}

	client := backend.NewPostgRESTClient(backend.Config{
		URL:        cfg.Backend.URL,
		AnonKey:    cfg.Backend.AnonKey,
		ServiceKey: cfg.Backend.ServiceKey,
		Timeout:    cfg.Backend.Timeout,
		Collector:  collector,
		Observe:    m.ObserveCall,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Kiosk runtime: one terminal per device cookie, pushed to pages over websockets
	hub := ws.NewHub(nil, m)
	go hub.Run(ctx)
	registry := kioskrt.NewRegistry(kioskrt.Options{
		IdleSeconds: cfg.Kiosk.IdleSeconds,
		Publisher:   hub,
		Recorder:    kioskrt.NewRecorder(audits, devices, m),
		Sessions:    m,
		DeviceTTL:   cfg.Kiosk.DeviceTTL,
		Connections: hub,
	})
	defer registry.Close()
	hub.SetActivityHandler(registry)

	if cfg.Email.ResendKey != "" {
		web.SetEmailSender(emailPkg.NewResendSender(cfg.Email.ResendKey, cfg.Email.From), cfg.Email.From, cfg.Email.ReplyTo)
		log.Println("Email sender configured (Resend)")
	} else {
		web.SetEmailSender(emailPkg.NewNoopSender(), cfg.Email.From, cfg.Email.ReplyTo)
		if cfg.Production() {
			log.Println("WARNING: RESTART_RESEND_KEY is not set, month-close summaries will not be delivered")
		} else {
			log.Println("Email sender configured (noop, set RESTART_RESEND_KEY for real delivery)")
		}
	}
	if cfg.Server.CSRFKeyGenerated {
		log.Println("RESTART_CSRF_KEY not set, using a random key for this process")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Println("WARNING: RESTART_JWT_SECRET is not set, admin endpoints will refuse every request")
	}

	retentionStop := make(chan struct{})
	orchestrators.StartAuditRetentionWorker(orchestrators.PurgeAuditDeps{Store: audits}, cfg.Database.AuditRetention, auditRetentionInterval, retentionStop)
	defer close(retentionStop)

	mux := web.NewMux(&web.Services{
		Backend:     client,
		Kiosks:      registry,
		Sockets:     ws.NewHandler(hub, web.SocketOriginChecker(cfg)),
		AuditStore:  audits,
		DeviceStore: devices,
		Catalog:     catalog,
		Metrics:     m,
		Config:      cfg,
	}, collector)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Restart %s starting on %s (env=%s, schema=%d)", version, cfg.Server.Addr, cfg.Server.Env, storage.LatestSchemaVersion())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
