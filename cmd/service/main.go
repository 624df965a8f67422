package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/smart-farm-service/internal/alerting"
	"github.com/kjstillabower/smart-farm-service/internal/cache"
	"github.com/kjstillabower/smart-farm-service/internal/circuitbreaker"
	"github.com/kjstillabower/smart-farm-service/internal/config"
	httphandler "github.com/kjstillabower/smart-farm-service/internal/http"
	"github.com/kjstillabower/smart-farm-service/internal/ingest"
	"github.com/kjstillabower/smart-farm-service/internal/lifecycle"
	"github.com/kjstillabower/smart-farm-service/internal/mqttingest"
	"github.com/kjstillabower/smart-farm-service/internal/notify"
	"github.com/kjstillabower/smart-farm-service/internal/observability"
	"github.com/kjstillabower/smart-farm-service/internal/price"
	"github.com/kjstillabower/smart-farm-service/internal/session"
	"github.com/kjstillabower/smart-farm-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	db, err := store.Open(store.Options{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DBDSN,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		LogQueries:      cfg.DBLogQueries,
	})
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	logger.Info("store opened", zap.String("driver", cfg.DBDriver))

	healthChecks := []httphandler.HealthCheck{{Name: "database", Check: db.Ping}}

	var snapshots cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.CacheCapacity)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		snapshots = mc
		healthChecks = append(healthChecks, httphandler.HealthCheck{
			Name:  "cache",
			Check: func(context.Context) error { return mc.Ping() },
		})
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		snapshots = cache.NewRingCache(cfg.CacheCapacity)
		logger.Info("cache backend: in_memory", zap.Int("capacity", cfg.CacheCapacity))
	}

	notifiers, bus := buildNotifiers(cfg, logger)
	evaluator := alerting.NewEvaluator(db, notifiers, cfg.SoilThreshold, cfg.NotifyTimeout, logger)
	ingester := ingest.NewService(db, snapshots, evaluator, cfg.DisplayLocation, logger)

	var sessionStore session.Store
	var redisStore *session.RedisStore
	switch cfg.SessionBackend {
	case "redis":
		redisStore = session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		sessionStore = redisStore
		healthChecks = append(healthChecks, httphandler.HealthCheck{Name: "sessions", Check: redisStore.Ping})
		logger.Info("session backend: redis", zap.String("addr", cfg.RedisAddr))
	default:
		sessionStore = session.NewMemoryStore()
		logger.Info("session backend: memory")
	}
	passwordHash := []byte(cfg.AdminPasswordHash)
	if len(passwordHash) == 0 {
		passwordHash, err = session.HashPassword(cfg.AdminPassword)
		if err != nil {
			logger.Fatal("admin password", zap.Error(err))
		}
	}
	sessions, err := session.NewManager(sessionStore, passwordHash, cfg.SessionTTL, cfg.SessionSecure)
	if err != nil {
		logger.Fatal("session manager", zap.Error(err))
	}

	catalog, err := price.LoadCatalog(cfg.ModelsDir)
	if err != nil {
		logger.Fatal("price catalog", zap.Error(err))
	}
	logger.Info("price catalog loaded", zap.String("dir", cfg.ModelsDir), zap.Int("crops", len(catalog.Names())))

	state := lifecycle.New()
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(httphandler.HandlerConfig{
		APIKey:       cfg.SensorAPIKey,
		Location:     cfg.DisplayLocation,
		Ingester:     ingester,
		Cache:        snapshots,
		Store:        db,
		Sessions:     sessions,
		Predictor:    price.NewPredictor(catalog, nil),
		Lifecycle:    state,
		HealthChecks: healthChecks,
	}, logger)
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// no WriteTimeout: /sensor waits for notification channels
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	var subscriber *mqttingest.Subscriber
	if cfg.MQTTEnabled {
		subscriber = mqttingest.NewSubscriber(mqttingest.Config{
			BrokerURL:      cfg.MQTTBrokerURL,
			ClientID:       cfg.MQTTClientID,
			Username:       cfg.MQTTUsername,
			Password:       cfg.MQTTPassword,
			Topic:          cfg.MQTTTopic,
			QoS:            cfg.MQTTQoS,
			ConnectTimeout: cfg.MQTTConnectTimeout,
		}, ingester, logger)
		if err := subscriber.Start(); err != nil {
			// paho keeps retrying in the background
			logger.Error("mqtt start", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	state.SetShuttingDown(true)
	if subscriber != nil {
		subscriber.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if bus != nil {
		bus.Close()
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			logger.Error("redis close", zap.Error(err))
		}
	}
	if err := db.Close(); err != nil {
		logger.Error("store close", zap.Error(err))
	}
	logger.Info("shutdown complete")
	_ = observability.Flush(logger)
}

// buildNotifiers always registers email and sms so every alert attempts
// both; a channel without credentials is an Unconfigured placeholder. The bus
// notifier is optional and returned separately so it can be drained on
// shutdown.
func buildNotifiers(cfg *config.Config, logger *zap.Logger) ([]alerting.Notifier, *notify.BusNotifier) {
	var notifiers []alerting.Notifier

	email, err := notify.NewEmailNotifier(notify.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
		To:       cfg.EmailTo,
	})
	if err != nil {
		logger.Warn("email channel not configured; alerts will record failed attempts", zap.Error(err))
		notifiers = append(notifiers, notify.NewUnconfigured("email", err))
	} else {
		notifiers = append(notifiers, email)
	}

	sms, err := notify.NewSMSNotifier(notify.SMSConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioFrom,
		To:         cfg.TwilioTo,
	})
	if err != nil {
		logger.Warn("sms channel not configured; alerts will record failed attempts", zap.Error(err))
		notifiers = append(notifiers, notify.NewUnconfigured("sms", err))
	} else {
		notifiers = append(notifiers, sms)
	}

	var bus *notify.BusNotifier
	if cfg.NATSURL != "" {
		n, err := notify.NewBusNotifier(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logger.Warn("bus channel disabled", zap.Error(err))
		} else {
			bus = n
			notifiers = append(notifiers, n)
		}
	}

	if cfg.BreakerEnabled {
		for i, n := range notifiers {
			if _, ok := n.(*notify.Unconfigured); ok {
				continue
			}
			observability.SetNotifierCircuitState(n.Name(), int(circuitbreaker.StateClosed))
			notifiers[i] = notify.Guard(n, circuitbreaker.Config{
				FailureThreshold: cfg.BreakerFailureThreshold,
				SuccessThreshold: cfg.BreakerSuccessThreshold,
				Cooldown:         cfg.BreakerCooldown,
				OnStateChange: func(name string, from, to circuitbreaker.State) {
					observability.SetNotifierCircuitState(name, int(to))
					logger.Warn("notifier circuit transition",
						zap.String("channel", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()))
				},
			})
		}
		logger.Info("notifier circuit breakers enabled",
			zap.Int("failure_threshold", cfg.BreakerFailureThreshold),
			zap.Duration("cooldown", cfg.BreakerCooldown))
	}

	names := make([]string, 0, len(notifiers))
	for _, n := range notifiers {
		names = append(names, n.Name())
	}
	logger.Info("notification channels", zap.Strings("channels", names))
	return notifiers, bus
}
