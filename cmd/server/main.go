package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kim-el/voice-pos-system/internal/cart"
	"github.com/kim-el/voice-pos-system/internal/config"
	"github.com/kim-el/voice-pos-system/internal/httpserver"
	"github.com/kim-el/voice-pos-system/internal/menu"
	"github.com/kim-el/voice-pos-system/internal/model"
	"github.com/kim-el/voice-pos-system/internal/notify"
	"github.com/kim-el/voice-pos-system/internal/relay"
	"github.com/kim-el/voice-pos-system/internal/session"
	"github.com/kim-el/voice-pos-system/internal/store"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pg *store.Postgres
	if cfg.DatabaseURL != "" {
		var err error
		pg, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("store: %v", err)
		}
		defer pg.Close()
	}

	var publisher *notify.Publisher
	if cfg.AMQPURL != "" {
		var err error
		publisher, err = notify.Dial(cfg.AMQPURL)
		if err != nil {
			log.Printf("notify: broker unavailable, notifications disabled: %v", err)
		} else {
			defer publisher.Close()
		}
	}

	hub := relay.NewHub()
	handlers := httpserver.Handlers{Cfg: cfg, Hub: hub}
	if pg != nil {
		handlers.Store = pg
	}
	if publisher != nil {
		handlers.Notifier = publisher
	}

	// Server-side cashier: relayed items merge into a register whose tender,
	// commit and cancel operations are driven through /api/cart.
	var cashier *session.Cashier
	if pg != nil {
		register := cart.NewRegister(pg)
		register.OnChange(func(s cart.Snapshot) {
			log.Printf("cashier: %d lines, total %.2f, tendered %.2f", len(s.Lines), s.Total, s.Tendered)
		})
		cashier = session.NewCashier(register, relay.NewClient(cfg.RelayURL))
		handlers.Cart = register
	}

	e := httpserver.New(handlers)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	if cashier != nil {
		if err := cashier.Start(); err != nil {
			log.Printf("cashier: %v", err)
		} else {
			defer func() { _ = cashier.Stop() }()
		}
	}

	// Voice producer: model stream -> accumulator -> extractor -> relay.
	if cfg.ModelEnabled() {
		mc := model.NewLiveClient(cfg.GoogleAPIKey, cfg.MenuPrompt).WithModel(cfg.GeminiModel)
		if err := mc.Connect(); err != nil {
			log.Printf("model: voice ordering disabled: %v", err)
		} else {
			defer func() { _ = mc.Close() }()
			producer := relay.NewClient(cfg.RelayURL)
			if err := producer.Connect(); err != nil {
				log.Printf("relay: %v", err)
			}
			defer func() { _ = producer.Close() }()
			sess := session.New(menu.Build(cfg.MenuPrompt), producer, nil)
			stop := sess.Start(ctx, mc.Fragments())
			defer stop()
		}
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
