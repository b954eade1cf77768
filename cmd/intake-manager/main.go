// cmd/intake-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cohort-intake/internal/analysis"
	"cohort-intake/internal/common/aws"
	"cohort-intake/internal/common/config"
	"cohort-intake/internal/common/database"
	"cohort-intake/internal/common/logger"
	"cohort-intake/internal/common/observability"
	"cohort-intake/internal/flow"
	"cohort-intake/internal/geocode"
	"cohort-intake/internal/notify"
	"cohort-intake/internal/prefs"
	"cohort-intake/internal/registry"
	"cohort-intake/internal/store"
	"cohort-intake/internal/suggest"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting intake manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New("intake-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Question registry ---
	questionReg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("question registry load failed", zap.Error(err))
	}
	zapLog.Info("Question registry loaded",
		zap.String("version", questionReg.Version),
		zap.Int("questions", len(questionReg.Questions)),
	)

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- AWS notification clients (optional) ---
	var sesClient notify.SESService
	var snsClient notify.SNSService
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		ses, sns, err := aws.NewNotificationClients(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Warn("AWS client init failed, completion notifications disabled", zap.Error(err))
		} else {
			sesClient = ses
			snsClient = sns
		}
	}

	// --- Assemble the engine ---
	suggestCfg := &suggest.Config{
		BaseURL:        cfg.Suggestions.BaseURL,
		APIKey:         cfg.Suggestions.APIKey,
		DebounceWindow: time.Duration(cfg.Suggestions.DebounceWindow) * time.Millisecond,
		MinInputLength: cfg.Suggestions.MinInputLength,
		RequestTimeout: time.Duration(cfg.Suggestions.RequestTimeout) * time.Millisecond,
		MaxRetries:     cfg.Suggestions.MaxRetries,
	}
	suggestService := suggest.NewService(suggestCfg, log)

	geocodeCfg := &geocode.Config{
		DebounceWindow:      time.Duration(cfg.Geocode.DebounceWindow) * time.Millisecond,
		MinQueryLength:      cfg.Geocode.MinQueryLength,
		SecondaryBaseURL:    cfg.Geocode.Secondary.BaseURL,
		SecondaryAPIKey:     cfg.Geocode.Secondary.APIKey,
		SecondaryMaxResults: cfg.Geocode.Secondary.MaxResults,
		SecondaryTimeout:    time.Duration(cfg.Geocode.Secondary.Timeout) * time.Millisecond,
	}
	secondaryProvider := geocode.NewHTTPSecondaryProvider(geocodeCfg, log)

	analysisService := analysis.NewService(&analysis.Config{
		BaseURL:        cfg.Analysis.BaseURL,
		APIKey:         cfg.Analysis.APIKey,
		RequestTimeout: time.Duration(cfg.Analysis.Timeout) * time.Millisecond,
		MaxRetries:     cfg.Analysis.MaxRetries,
	}, log)

	gateway := store.NewGateway(
		&store.Config{
			IndexName:    cfg.Database.Elasticsearch.Index,
			RetentionTTL: 24 * time.Hour,
		},
		pg.DB,
		redisClient,
		store.NewESIndexer(esClient.Client, cfg.Database.Elasticsearch.Index),
		log,
	)

	prefsStore := prefs.NewStore(&prefs.Config{
		Namespace: cfg.Preferences.Namespace,
		TTL:       time.Duration(cfg.Preferences.TTLHours) * time.Hour,
	}, redisClient.Client, log)

	notifier := notify.NewNotifier(&cfg.Notifications, sesClient, snsClient, log)

	flowConfig := &flow.Config{
		BranchQuestionID: questionReg.BranchQuestionID,
		AnalysisTimeout:  time.Duration(cfg.Flow.AnalysisTimeout) * time.Millisecond,
	}

	manager := NewSessionManager(
		questionReg,
		flowConfig,
		suggestCfg,
		geocodeCfg,
		suggestService,
		secondaryProvider,
		analysisService,
		gateway,
		prefsStore,
		notifier,
		obs,
		log,
	)
	zapLog.Info("Intake engine assembled")

	// --- HTTP server: session API, health, metrics ---
	mux := http.NewServeMux()
	manager.Routes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		code := http.StatusOK
		if err := pg.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	server := &http.Server{
		Addr:    ":8080",
		Handler: mux,
	}
	go func() {
		zapLog.Info("Intake manager listening on :8080")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining sessions...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Intake manager stopped gracefully")
}
