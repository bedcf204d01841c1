// README: Entry point; loads config, wires stores, oracles and services, serves HTTP until signalled.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"campusride/internal/config"
	"campusride/internal/events"
	"campusride/internal/geo"
	httptransport "campusride/internal/http"
	"campusride/internal/http/handlers"
	"campusride/internal/infra"
	"campusride/internal/logging"
	"campusride/internal/modules/bargain"
	"campusride/internal/modules/driver"
	"campusride/internal/modules/fare"
	"campusride/internal/modules/matching"
	"campusride/internal/modules/ride"
	"campusride/internal/observability"
	"campusride/internal/payment"
)

const routeCacheTTL = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.New()

	rideStore := ride.Store(ride.NewMemoryStore())
	bargainStore := bargain.Store(bargain.NewMemoryStore())
	paymentLedger := payment.Ledger(payment.NewMemoryLedger())
	var rateSaver handlers.RateSaver
	rates := fare.DefaultRates()
	if cfg.DB.DSN != "" {
		db, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		rideStore = ride.NewPGStore(db)
		bargainStore = bargain.NewPGStore(db)
		paymentLedger = payment.NewPGLedger(db)
		fareStore := fare.NewStore(db)
		if rates, err = fareStore.LoadRates(ctx); err != nil {
			return err
		}
		rateSaver = fareStore
		log.Info("using postgres stores")
	} else {
		log.Warn("CAMPUSRIDE_DB_DSN not set; rides, offers and payments are kept in memory")
	}

	fares, err := fare.NewEngine(rates)
	if err != nil {
		return err
	}

	var mirror driver.Mirror
	var nearby *driver.RedisMirror
	if cfg.Redis.Addr != "" {
		client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		nearby = driver.NewRedisMirror(client)
		mirror = nearby
	} else if cfg.DB.DSN != "" {
		log.Warn("CAMPUSRIDE_REDIS_ADDR not set; rides persist but the driver pool starts empty after a restart")
	}
	pool := driver.NewPool(mirror, log.Named("drivers"))
	if n, err := pool.Restore(ctx); err != nil {
		log.Warn("restore driver pool failed", zap.Error(err))
	} else if n > 0 {
		log.Info("driver pool restored", zap.Int("drivers", n))
	}

	var base geo.Oracle = geo.HaversineOracle{}
	if cfg.Maps.APIKey != "" {
		g, err := geo.NewGoogleOracle(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		base = g
	}
	oracle := geo.NewCached(geo.WithTimeout(base, cfg.Dispatch.OracleTimeout, log.Named("geo")), routeCacheTTL)

	var payments payment.Oracle
	if cfg.Payment.StripeKey != "" {
		payments = payment.NewStripeGateway(cfg.Payment.StripeKey, cfg.Payment.Currency, cfg.Payment.StripePaymentMethod, paymentLedger)
	} else {
		payments = payment.NewMockGateway(paymentLedger, payment.SeededDecider(cfg.Payment.Seed, cfg.Payment.SuccessRate), cfg.Payment.Currency)
	}

	var publisher events.Publisher = events.NewLogPublisher(log.Named("events"))
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.Named("events"))
	}
	defer func() { _ = publisher.Close() }()

	matcher := matching.NewService(pool, oracle, matching.Config{
		OracleTimeout:   cfg.Dispatch.OracleTimeout,
		MaxClaimRetries: cfg.Dispatch.MaxClaimRetries,
		Parallelism:     cfg.Dispatch.Parallelism,
	}, log.Named("matching"), metrics)

	rides := ride.NewService(ride.Deps{
		Store:     rideStore,
		Fares:     fares,
		Drivers:   pool,
		Matcher:   matcher,
		Ledger:    bargain.NewLedger(bargainStore, nil),
		Oracle:    oracle,
		Payments:  payments,
		Publisher: publisher,
		Logger:    log.Named("rides"),
		Metrics:   metrics,
	}, ride.Config{PaymentTimeout: cfg.Dispatch.PaymentTimeout})

	deps := httptransport.ServerDeps{
		Rides:     rides,
		Drivers:   pool,
		Fares:     fares,
		Oracle:    oracle,
		RateSaver: rateSaver,
		Logger:    log.Named("http"),
		Metrics:   metrics,
	}
	if nearby != nil {
		deps.Nearby = nearby
	}
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httptransport.NewServer(deps).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
