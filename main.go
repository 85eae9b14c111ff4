package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"ewaybill-cloud/internal/audit"
	"ewaybill-cloud/internal/auth"
	ewaybillapp "ewaybill-cloud/internal/ewaybill/application"
	ewaybillrepo "ewaybill-cloud/internal/ewaybill/infrastructure/postgres"
	ewaybillhttp "ewaybill-cloud/internal/ewaybill/interfaces/http"
	"ewaybill-cloud/internal/gsp"
	"ewaybill-cloud/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	rules, err := ewaybillapp.LoadRules()
	if err != nil {
		logger.Fatalf("rules config error: %v", err)
	}

	gspClient, err := gsp.NewClient(cfg.GSPBaseURL, cfg.GSPAPIKey, cfg.Gstin)
	if err != nil {
		logger.Fatalf("gsp client error: %v", err)
	}

	registry := ewaybillrepo.NewRegistry(db)
	consolidatedRepo := ewaybillrepo.NewConsolidatedRepository(db)
	service, err := ewaybillapp.NewService(registry, consolidatedRepo, gspClient, systemClock{}, rules)
	if err != nil {
		logger.Fatalf("ewaybill service error: %v", err)
	}

	billHandler, err := ewaybillhttp.NewBillHandler(service, auditRepo)
	if err != nil {
		logger.Fatalf("ewaybill handler error: %v", err)
	}
	consolidatedHandler, err := ewaybillhttp.NewConsolidatedHandler(service, auditRepo)
	if err != nil {
		logger.Fatalf("consolidated handler error: %v", err)
	}

	go func() {
		ticker := time.NewTicker(rules.ExpirySweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			count, err := service.SweepExpired(context.Background())
			if err != nil {
				logger.Printf("expiry sweep error: %v", err)
				continue
			}
			if count > 0 {
				logger.Printf("expiry sweep: %d bills expired", count)
			}
		}
	}()

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/ewaybills", billHandler)
	mux.Handle("/api/v1/ewaybills/", billHandler)
	mux.Handle("/api/v1/consolidated", consolidatedHandler)
	mux.Handle("/api/v1/consolidated/", consolidatedHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
	Gstin       string
	GSPBaseURL  string
	GSPAPIKey   string
	JWTSecret   string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		Gstin:       getenvDefault("EWB_GSTIN", ""),
		GSPBaseURL:  getenvDefault("GSP_BASE_URL", ""),
		GSPAPIKey:   getenvDefault("GSP_API_KEY", ""),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.GSPBaseURL == "" {
		log.Fatal("GSP_BASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
