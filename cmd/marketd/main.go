package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/market-engine/internal/api"
	"github.com/example/market-engine/internal/auth"
	"github.com/example/market-engine/internal/clock"
	"github.com/example/market-engine/internal/config"
	"github.com/example/market-engine/internal/credits"
	"github.com/example/market-engine/internal/escrow"
	"github.com/example/market-engine/internal/infrastructure/kafka"
	"github.com/example/market-engine/internal/infrastructure/store"
	"github.com/example/market-engine/internal/ledger"
	"github.com/example/market-engine/internal/livequeue"
	"github.com/example/market-engine/internal/market"
	"github.com/example/market-engine/internal/notification"
	"github.com/example/market-engine/internal/vault"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("[Market] %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log.Println("[Market] ========================================")
	log.Println("[Market] Player Marketplace Engine")
	log.Println("[Market] ========================================")
	log.Printf("[Market] Database: %s", cfg.DBDriver)
	log.Printf("[Market] Kafka: %v", cfg.Kafka.Brokers)
	log.Printf("[Market] Topic: %s", cfg.Kafka.Topic)

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Printf("[Market] Connected to %s", db.Driver())

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	clk := clock.NewSystem()
	repo := store.NewSQLRepository(db)

	marketStore := market.NewStore(repo)
	if err := marketStore.Load(ctx); err != nil {
		return err
	}
	returns := vault.New(repo, clk)
	if err := returns.Load(ctx); err != nil {
		return err
	}

	owed := credits.New(repo, clk)
	if err := owed.Load(ctx); err != nil {
		return err
	}

	journal := store.NewSQLEventStore(db, producer)
	publisher := notification.NewPublisher(producer)
	queue := livequeue.New(marketStore, publisher, clk)

	deps := market.Deps{
		Store:     marketStore,
		Escrow:    escrow.NewAdapter(store.NewWallet(db), escrow.WithTimeout(cfg.EconomyTimeout)),
		Inventory: store.NewInventory(db, cfg.InventorySlots),
		Vault:     returns,
		Credits:   owed,
		Ledger:    ledger.NewService(repo, clk, ledger.WithLimit(cfg.HistorySize)),
		Queue:     queue,
		Notifier:  publisher,
		Journal:   journal,
		Clock:     clk,
	}
	if len(cfg.PriceGuide) > 0 {
		guide, err := market.ParsePriceGuide(cfg.PriceGuide)
		if err != nil {
			return err
		}
		deps.Appraiser = guide
		log.Printf("[Market] Price guide with %d materials", len(guide))
	}
	manager := market.NewManager(cfg.Market(), deps)

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	router := api.NewRouter(api.RouterConfig{
		Handlers:   api.NewHandlers(manager, journal),
		JWTService: jwtService,
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(market.NewSweeper(manager, cfg.SweepInterval).Run(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(queue.Run(gctx, cfg.LiveInterval))
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("[Market] Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
