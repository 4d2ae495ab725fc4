package main

import (
	"context"
	"expvar"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"payhooks/internal"
	"payhooks/pkg/storage"
	"payhooks/pkg/storage/rest"
	"payhooks/pkg/storage/sqlstore"
	"payhooks/webhook"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ruleEngine, err := internal.NewRuleEngine(internal.RulesConfig{
		Rules:  config.Rules,
		Strict: config.RulesStrict,
		Logger: logger,
	})
	if err != nil {
		logger.Fatalf("compile rules: %v", err)
	}

	publisher, err := internal.NewPublisher(config.Watermill)
	if err != nil {
		logger.Fatalf("publisher: %v", err)
	}
	defer publisher.Close()

	var (
		accounts storage.AccountService
		audit    storage.AuditLog
		intents  storage.IntentStore
		pinger   webhook.Pinger
	)

	if config.Account.BaseURL != "" {
		client, err := rest.New(rest.Config{
			BaseURL:           config.Account.BaseURL,
			APIKey:            config.Account.APIKey,
			OAuthTokenURL:     config.Account.OAuthTokenURL,
			OAuthClientID:     config.Account.OAuthClientID,
			OAuthClientSecret: config.Account.OAuthClientSecret,
			Timeout:           time.Duration(config.Account.TimeoutMS) * time.Millisecond,
			LogTable:          config.Account.LogTable,
			IntentsTable:      config.Account.IntentsTable,
		})
		if err != nil {
			logger.Fatalf("account client: %v", err)
		}
		accounts = client
		audit = client
		pinger = client
		if config.Intents.Enabled && config.Intents.Mode == "remote" {
			intents = client
		}
	}

	if config.Intents.Enabled && config.Intents.Mode == "sql" {
		store, err := sqlstore.Open(sqlstore.Config{
			Driver:       config.Intents.SQL.Driver,
			DSN:          config.Intents.SQL.DSN,
			Dialect:      config.Intents.SQL.Dialect,
			IntentsTable: config.Intents.SQL.IntentsTable,
			AuditTable:   config.Intents.SQL.AuditTable,
			AutoMigrate:  config.Intents.SQL.AutoMigrate,
		})
		if err != nil {
			logger.Fatalf("intent store: %v", err)
		}
		defer store.Close()
		intents = store
		if audit == nil {
			audit = store
		}
		if pinger == nil {
			pinger = store
		}
	}

	limits := config.Scan.Limits()
	extractor := internal.NewExtractor(limits)
	resolver := &internal.Resolver{
		Accounts:   accounts,
		Intents:    intents,
		Provider:   config.Provider.Name,
		Window:     time.Duration(config.Intents.WindowMinutes) * time.Minute,
		Limit:      config.Intents.Limit,
		AmountDays: config.Credit.AmountDays,
		Limits:     limits,
		Logger:     logger,
	}
	pipeline := &internal.Pipeline{
		Provider:    config.Provider.Name,
		Description: config.Credit.Description,
		Extractor:   extractor,
		Resolver:    resolver,
		Accounts:    accounts,
		Intents:     intents,
		Audit:       audit,
		Publisher:   publisher,
		Rules:       ruleEngine,
		Logger:      logger,
	}

	mux := http.NewServeMux()
	mux.Handle(config.Provider.Path, webhook.NewPaymentHandler(pipeline, config.Provider.Name, config.Server.MaxBodyBytes, logger))
	mux.Handle(config.Provider.HandshakePath, webhook.NewHandshakeHandler(pipeline, logger))
	mux.Handle(config.Provider.DiagPath, webhook.NewDiagHandler(pipeline, config.Provider.Name, pinger, logger))
	mux.Handle(config.Provider.HealthPath, webhook.HealthHandler{})
	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, expvar.Handler())
	}
	logger.Printf("provider %s enabled on %s", config.Provider.Name, config.Provider.Path)

	handler := internal.NewRateLimitHandler(mux, config.Server.RateLimitRPS, config.Server.RateLimitBurst, 10*time.Minute)

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
