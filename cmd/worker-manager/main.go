// cmd/worker-manager/main.go
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

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"admissions-workers/internal/common/camunda"
	"admissions-workers/internal/common/config"
	"admissions-workers/internal/common/database"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/common/observability"
	"admissions-workers/internal/fitstore"

	// Fit Pipeline Workers (4)
	cf "admissions-workers/internal/workers/fit/compute-fit"
	lf "admissions-workers/internal/workers/fit/lookup-fit"
	pfr "admissions-workers/internal/workers/fit/parse-fit-response"
	rfc "admissions-workers/internal/workers/fit/refresh-fit-cache"

	// College List Workers (2)
	brc "admissions-workers/internal/workers/list/bulk-remove-colleges"
	tc "admissions-workers/internal/workers/list/toggle-college"

	// Policy Worker (1)
	vt "admissions-workers/internal/workers/policy/validate-tier"

	// Catalog Workers (2)
	fsc "admissions-workers/internal/workers/catalog/filter-sort-catalog"
	qc "admissions-workers/internal/workers/catalog/query-catalog"

	// Notification Worker (1)
	nfc "admissions-workers/internal/workers/notification/notify-fit-complete"
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
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs = observability.New("worker-manager")
	defer obs.Shutdown()

	jaegerEndpoint := ""
	if cfg.Tracing.Enabled {
		jaegerEndpoint = cfg.Tracing.JaegerEndpoint
	}
	tracing = observability.NewTracing("worker-manager", jaegerEndpoint)
	defer tracing.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         time.Duration(cfg.Camunda.RequestTimeout) * time.Millisecond,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zeebeClient := camundaClient.GetClient()
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
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
		// Test the connection
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Shared Fit Stores ---
	fitCacheTTL := time.Duration(cfg.Fit.CacheTTLHours) * time.Hour
	progressTTL := time.Duration(cfg.Fit.ProgressTTLHours) * time.Hour
	fits := fitstore.New(redis.Client, fitCacheTTL)
	progress := fitstore.NewProgress(redis.Client, progressTTL)

	zapLog.Info("Fit stores initialized",
		zap.Duration("cacheTTL", fitCacheTTL),
		zap.Duration("progressTTL", progressTTL),
	)

	// --- START: Register ALL 10 Workers ---

	// Adapters for the fit workers that carry their own Logger interfaces
	pfrLogAdapter := &parseFitResponseLoggerAdapter{log}
	cfLogAdapter := &computeFitLoggerAdapter{log}
	rfcLogAdapter := &refreshFitCacheLoggerAdapter{log}
	lfLogAdapter := &lookupFitLoggerAdapter{log}

	// --- 1. Fit Pipeline Workers (4) ---
	if cfg.Workers[pfr.TaskType].Enabled {
		handler := pfr.NewHandler(
			&pfr.Config{
				Timeout: time.Duration(cfg.Workers[pfr.TaskType].Timeout) * time.Millisecond,
			},
			pfrLogAdapter,
		)
		startWorker(zeebeClient, pfr.TaskType, cfg.Workers[pfr.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[cf.TaskType].Enabled {
		handler := cf.NewHandler(
			&cf.Config{
				AgentBaseURL: cfg.APIs.FitAgent.BaseURL,
				AgentAPIKey:  cfg.APIs.FitAgent.APIKey,
				Timeout:      time.Duration(cfg.Workers[cf.TaskType].Timeout) * time.Millisecond,
				AgentTimeout: time.Duration(cfg.APIs.FitAgent.Timeout) * time.Millisecond,
				MaxRetries:   cfg.Workers[cf.TaskType].MaxRetries,
			},
			pg.DB, redis.Client, fits, progress, cfLogAdapter,
		)
		startWorker(zeebeClient, cf.TaskType, cfg.Workers[cf.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[rfc.TaskType].Enabled {
		handler := rfc.NewHandler(
			&rfc.Config{
				PrecomputedFitsURL: cfg.APIs.PrecomputedFits.BaseURL,
				StalenessURL:       cfg.APIs.Staleness.BaseURL,
				RecomputeURL:       cfg.APIs.Recompute.BaseURL,
				Timeout:            time.Duration(cfg.Workers[rfc.TaskType].Timeout) * time.Millisecond,
				MaxRetries:         cfg.Workers[rfc.TaskType].MaxRetries,
			},
			fits, rfcLogAdapter,
		)
		startWorker(zeebeClient, rfc.TaskType, cfg.Workers[rfc.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[lf.TaskType].Enabled {
		handler := lf.NewHandler(
			&lf.Config{
				Timeout: time.Duration(cfg.Workers[lf.TaskType].Timeout) * time.Millisecond,
			},
			fits, lfLogAdapter,
		)
		startWorker(zeebeClient, lf.TaskType, cfg.Workers[lf.TaskType], handler.Handle, zapLog)
	}

	// --- 2. College List Workers (2) ---
	if cfg.Workers[tc.TaskType].Enabled {
		handler := tc.NewHandler(
			&tc.Config{
				Timeout: time.Duration(cfg.Workers[tc.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, redis.Client, progress, log,
		)
		startWorker(zeebeClient, tc.TaskType, cfg.Workers[tc.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[brc.TaskType].Enabled {
		handler := brc.NewHandler(
			&brc.Config{
				Timeout: time.Duration(cfg.Workers[brc.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, redis.Client, log,
		)
		startWorker(zeebeClient, brc.TaskType, cfg.Workers[brc.TaskType], handler.Handle, zapLog)
	}

	// --- 3. Policy Worker (1) ---
	if cfg.Workers[vt.TaskType].Enabled {
		handler := vt.NewHandler(
			&vt.Config{
				Timeout: time.Duration(cfg.Workers[vt.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, redis.Client, log,
		)
		startWorker(zeebeClient, vt.TaskType, cfg.Workers[vt.TaskType], handler.Handle, zapLog)
	}

	// --- 4. Catalog Workers (2) ---
	if cfg.Workers[qc.TaskType].Enabled {
		handler := qc.NewHandler(
			&qc.Config{
				IndexName: "university-catalog",
				Timeout:   time.Duration(cfg.Workers[qc.TaskType].Timeout) * time.Millisecond,
			},
			esClient.Client, log,
		)
		startWorker(zeebeClient, qc.TaskType, cfg.Workers[qc.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[fsc.TaskType].Enabled {
		handler := fsc.NewHandler(
			&fsc.Config{
				PageSize: 20,
				Timeout:  time.Duration(cfg.Workers[fsc.TaskType].Timeout) * time.Millisecond,
			},
			fits, log,
		)
		startWorker(zeebeClient, fsc.TaskType, cfg.Workers[fsc.TaskType], handler.Handle, zapLog)
	}

	// --- 5. Notification Worker (1) ---
	if cfg.Workers[nfc.TaskType].Enabled {
		handler, err := nfc.NewHandler(
			&nfc.Config{
				EmailEnabled: cfg.Notifications.Email.Enabled,
				SMSEnabled:   cfg.Notifications.SMS.Enabled,
				FromEmail:    cfg.Notifications.Email.FromEmail,
				AWSRegion:    cfg.Notifications.AWS.Region,
				Timeout:      time.Duration(cfg.Workers[nfc.TaskType].Timeout) * time.Millisecond,
			},
			pg.DB, log,
		)
		if err != nil {
			zapLog.Fatal("failed to create notify-fit-complete handler", zap.Error(err))
		}
		startWorker(zeebeClient, nfc.TaskType, cfg.Workers[nfc.TaskType], handler.Handle, zapLog)
	}

	zapLog.Info("All 10 workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := camundaClient.HealthCheck(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range activeWorkers {
		w.Stop(shutdownCtx)
	}

	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// Logger adapters for fit workers that have their own Logger interfaces
type parseFitResponseLoggerAdapter struct {
	logger.Logger
}

func (a *parseFitResponseLoggerAdapter) With(fields map[string]interface{}) pfr.Logger {
	return &parseFitResponseLoggerAdapter{a.Logger.With(fields)}
}

type computeFitLoggerAdapter struct {
	logger.Logger
}

func (a *computeFitLoggerAdapter) With(fields map[string]interface{}) cf.Logger {
	return &computeFitLoggerAdapter{a.Logger.With(fields)}
}

type refreshFitCacheLoggerAdapter struct {
	logger.Logger
}

func (a *refreshFitCacheLoggerAdapter) With(fields map[string]interface{}) rfc.Logger {
	return &refreshFitCacheLoggerAdapter{a.Logger.With(fields)}
}

type lookupFitLoggerAdapter struct {
	logger.Logger
}

func (a *lookupFitLoggerAdapter) With(fields map[string]interface{}) lf.Logger {
	return &lookupFitLoggerAdapter{a.Logger.With(fields)}
}

// activeWorkers collects every opened worker so shutdown can close them
// before the shared client goes away.
var (
	activeWorkers []*camunda.CamundaWorker
	obs           *observability.Observability
	tracing       *observability.Tracing
)

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	instrumented := func(jobClient worker.JobClient, job entities.Job) {
		ctx, span := tracing.StartSpan(context.Background(), taskType, job.Key)
		start := time.Now()
		handlerFunc(jobClient, job)
		span.End()
		obs.RecordJobProcessed(ctx, taskType, "handled")
		obs.RecordJobDuration(ctx, taskType, time.Since(start), "handled")
	}

	w := camunda.NewWorker(
		client,
		taskType,
		wcfg.MaxJobsActive,
		time.Duration(wcfg.Timeout)*time.Millisecond,
		instrumented,
		log,
	)
	activeWorkers = append(activeWorkers, w)
}
