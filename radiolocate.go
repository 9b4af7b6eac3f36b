// Command radiolocate runs the geolocation service: it ingests radio
// observation reports over HTTP, folds them into per-emitter position
// aggregates in the background, and answers locate queries from what it
// has learned, falling back to an imported coarse cell dataset.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"radiolocate/pkg/aggregator"
	"radiolocate/pkg/api"
	"radiolocate/pkg/cellexport"
	"radiolocate/pkg/coarseimport"
	"radiolocate/pkg/config"
	"radiolocate/pkg/database"
	"radiolocate/pkg/locate"
	"radiolocate/pkg/partitionkeeper"
	"radiolocate/pkg/reportbus"
	"radiolocate/pkg/stats"
)

// CompileVersion is replaced at build time via
// -ldflags "-X main.CompileVersion=v1.2.3".
var CompileVersion = "dev"

var showVersion = flag.Bool("version", false, "Print the version and exit.")
var importCells = flag.String("import-cells", "", "Load a coarse cell CSV (plain or gzip) into storage and exit.")

// withServerHeader wraps the root handler, adding a
// "Server: radiolocate/<CompileVersion>" header to every response.
//
// A HEAD request to "/" answers 200 OK with no body so load balancers
// and uptime probes can check liveness without touching the API.
func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "radiolocate/"+CompileVersion)

		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// serveWithDomain runs the dual listener for DOMAIN mode:
//   - :80  — ACME HTTP-01 challenge + 301 redirect to https://<domain>/…
//   - :443 — HTTPS with automatic Let's Encrypt certificates.
//
// When autocert cannot issue a certificate for a host or SNI, the last
// successfully fetched certificate is served as a fallback so clients
// that dial by IP still get a TLS session instead of a handshake error.
//
// Old handsets still submit observations over TLS 1.0, so the floor
// stays there and "http/1.0" is kept in the ALPN list.
// All errors are logged, never fatal.
func serveWithDomain(domain string, handler http.Handler) {
	certMgr := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache("certs"),
		HostPolicy: func(ctx context.Context, host string) error {
			// The bare domain and www.<domain> are allowed.
			if host == domain || host == "www."+domain {
				return nil
			}
			// An IP address is not blocked, we just never
			// request a certificate for it.
			if net.ParseIP(host) != nil {
				return nil
			}
			return errors.New("acme/autocert: host not configured")
		},
	}

	// :80 — challenge + redirect.
	go func() {
		mux80 := http.NewServeMux()
		mux80.Handle("/.well-known/acme-challenge/", certMgr.HTTPHandler(nil))
		mux80.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			target := "https://" + domain + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})

		log.Printf("HTTP  server (ACME+redirect) ➜ :80")
		if err := (&http.Server{
			Addr:              ":80",
			Handler:           mux80,
			ReadHeaderTimeout: 10 * time.Second,
		}).ListenAndServe(); err != nil {
			log.Printf("HTTP  server error: %v", err)
		}
	}()

	// Daily certificate check keeps renewal ahead of expiry.
	go func() {
		t := time.NewTicker(24 * time.Hour)
		defer t.Stop()
		for range t.C {
			if _, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err != nil {
				log.Printf("autocert renewal check: %v", err)
			}
		}
	}()

	// :443 — HTTPS.
	tlsCfg := certMgr.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS10
	tlsCfg.NextProtos = append([]string{"http/1.0"}, tlsCfg.NextProtos...)

	// Fallback certificate for IP dials and unknown SNI.
	var defaultCert *tls.Certificate
	go func() {
		for defaultCert == nil {
			if c, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err == nil {
				defaultCert = c
			}
			time.Sleep(time.Minute)
		}
	}()
	tlsCfg.GetCertificate = func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := certMgr.GetCertificate(chi)
		if err == nil {
			return c, nil
		}
		if defaultCert != nil {
			return defaultCert, nil
		}
		return nil, err
	}

	log.Printf("HTTPS server for %s ➜ :443 (TLS ≥1.0, ALPN h2/http1.1/1.0)", domain)
	if err := (&http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}).ListenAndServeTLS("", ""); err != nil {
		log.Printf("HTTPS server error: %v", err)
	}
}

func main() {
	// 1. Flags and version.
	flag.Parse()

	if *showVersion {
		fmt.Printf("radiolocate version %s\n", CompileVersion)
		return
	}

	// 2. Configuration comes from the environment. Exit 1: the
	// operator has to fix the deployment, a retry will not help.
	cfg, err := config.Load()
	if err != nil {
		log.Printf("❌ config: %v", err)
		os.Exit(1)
	}

	if cfg.Domain != "" && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		log.Println("⚠  Binding to :80 / :443 requires super-user rights; run with sudo or as root.")
	}

	// 3. Storage. Exit 2: the database is unreachable or refuses the
	// schema, which an orchestrator may retry.
	dbCfg, err := cfg.DatabaseConfig()
	if err != nil {
		log.Printf("❌ config: %v", err)
		os.Exit(1)
	}
	db, err := database.NewDatabase(dbCfg)
	if err != nil {
		log.Printf("❌ DB init: %v", err)
		os.Exit(2)
	}
	if err := db.InitSchema(); err != nil {
		log.Printf("❌ DB schema: %v", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. One-shot import mode: load the coarse dataset and exit.
	if *importCells != "" {
		summary, err := coarseimport.ImportFile(ctx, db, *importCells, log.Printf)
		if err != nil {
			log.Printf("❌ cell import: %v", err)
			os.Exit(1)
		}
		log.Printf("✅ cell import: %d read, %d loaded, %d skipped", summary.Read, summary.Loaded, summary.Skipped)
		return
	}

	// 5. Partitions must cover today before ingestion starts; the
	// keeper extends the horizon from here on.
	if err := db.EnsurePartitionsForward(ctx, cfg.PartitionHorizonDays); err != nil {
		log.Printf("❌ DB partitions: %v", err)
		os.Exit(2)
	}

	// Indexes build in the background so listeners come up
	// immediately; queries may be slower until they are ready.
	db.EnsureIndexesAsync(ctx, log.Printf)

	// 6. Background services. Each one owns its goroutines and stops
	// on ctx cancellation.
	bus := reportbus.NewBus(64)

	aggregator.Start(ctx, db, bus, aggregator.Config{
		BatchSize:          cfg.WorkerBatch,
		Concurrency:        cfg.WorkerConcurrency,
		MaxGNSSAccuracyM:   cfg.GNSSMaxAccuracyM,
		DefaultStrengthDBm: cfg.DefaultStrengthDBm,
	}, log.Printf)

	partitionkeeper.Start(ctx, db, partitionkeeper.Config{
		HorizonDays: cfg.PartitionHorizonDays,
		RetainDays:  cfg.RetainDays,
	}, log.Printf)

	statsSvc := stats.NewService(db, time.Minute, log.Printf)
	statsSvc.Start(ctx)

	export := cellexport.Start(ctx, db, filepath.Join("data", "cells.csv.gz"), 24*time.Hour, log.Printf)

	// 7. HTTP API.
	engine := locate.NewEngine(db, cfg.DefaultStrengthDBm)
	limiter := api.NewRateLimiter(time.Minute)
	handler := api.NewHandler(db, engine, bus, statsSvc, export, limiter, cfg.AuthToken, log.Printf)

	mux := http.NewServeMux()
	handler.Register(mux)
	rootHandler := withServerHeader(mux)

	if cfg.Domain != "" {
		// Dual server :80 + :443 with Let's Encrypt.
		go serveWithDomain(cfg.Domain, rootHandler)
	} else {
		go func() {
			log.Printf("HTTP server ➜ %s", cfg.BindAddr)
			if err := http.ListenAndServe(cfg.BindAddr, rootHandler); err != nil {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	// 8. Run until SIGINT/SIGTERM; background services watch the same
	// context, so returning here is the whole shutdown.
	<-ctx.Done()
	log.Printf("✅ shutdown: signal received, stopping")
}
