package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/freewilll/splitledger/api"
	"github.com/freewilll/splitledger/cache"
	"github.com/freewilll/splitledger/config"
	"github.com/freewilll/splitledger/currency"
	"github.com/freewilll/splitledger/database"
	"github.com/freewilll/splitledger/jwt"
	"github.com/freewilll/splitledger/service"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	log := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Configure Postgresql
	dbh, err := database.NewPgDatabase(cfg.DB, log).Connect(ctx)
	if err != nil {
		log.WithError(err).Fatal("Unable to connect to the database")
	}
	defer dbh.Close()

	// Create a schema is desired
	if cfg.CreateSchema {
		if err := dbh.CreateSchema(ctx); err != nil {
			log.WithError(err).Fatal("Unable to create the database schema")
		}
		log.Info("Database schema has been created")
		return
	}

	// Configure Redis
	rdb := cache.NewRedisCache(cfg.Cache)
	defer rdb.Close()
	if err := rdb.Ping(ctx); err != nil {
		// Summaries fall through to the database while redis is down
		log.WithError(err).Warn("Redis is unreachable")
	}

	svc := service.New(dbh, rdb, log)
	rates := currency.NewRateCache(currency.HTTPFetcher{URL: cfg.RatesURL, Client: http.DefaultClient}, cfg.RatesBase, cfg.RatesTTL, nil, log)
	signer := jwt.NewSigner([]byte(cfg.JWTKey), cfg.JWTTTL)

	// All systems are go
	if err := api.NewAPI(svc, signer, rates, log).Serve(ctx, cfg.ServerPort); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("Server stopped")
	}
}
