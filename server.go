package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/fincalc_backend/config"
	"bitbucket.org/mmdatafocus/fincalc_backend/models"
	"bitbucket.org/mmdatafocus/fincalc_backend/reports"
	"bitbucket.org/mmdatafocus/fincalc_backend/utils"
	"bitbucket.org/mmdatafocus/fincalc_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("fincalc-backend")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

type changeDataRequest struct {
	Name                  string   `json:"name"`
	DataTypeId            int      `json:"data_type_id" binding:"required"`
	PeriodId              *int     `json:"period_id"`
	IndexId               *int     `json:"index_id"`
	ItemId                *int     `json:"item_id"`
	FrcId                 int      `json:"frc_id" binding:"required"`
	AllocationLevelId     *int     `json:"allocation_level_id"`
	AffiliatedFrcId       *int     `json:"affiliated_frc_id"`
	OriginalCurrencyId    *int     `json:"original_currency_id"`
	SumInOriginalCurrency *float64 `json:"sum_in_original_currency"`
	SumInUsd              *float64 `json:"sum_in_usd"`
	Comments              *string  `json:"comments"`
	CalculatorId          string   `json:"calculator_id"`
}

// changeDataHandler records one fact change and queues it for the
// calculators. Only the fields present in the request overwrite the
// stored fact; the rest carry over from the latest stored version.
func changeDataHandler(refs *models.ReferenceService, store *models.ReportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()

		var req changeDataRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.IndexId != nil && req.ItemId != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "a fact holds either an index or an item, not both"})
			return
		}
		if req.IndexId == nil && req.ItemId == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "a fact needs an index or an item"})
			return
		}

		fields := reports.DataFields{Name: req.Name}

		var err error
		if fields.DataType, err = refs.DataTypeById(ctx, req.DataTypeId); err != nil {
			respondReferenceError(c, logger, "data_type_id", req.DataTypeId, err)
			return
		}
		if fields.Frc, err = refs.FrcById(ctx, req.FrcId); err != nil {
			respondReferenceError(c, logger, "frc_id", req.FrcId, err)
			return
		}
		if req.PeriodId != nil {
			if fields.Period, err = refs.PeriodById(ctx, *req.PeriodId); err != nil {
				respondReferenceError(c, logger, "period_id", *req.PeriodId, err)
				return
			}
		}
		if req.IndexId != nil {
			if fields.Index, err = refs.IndexById(ctx, *req.IndexId); err != nil {
				respondReferenceError(c, logger, "index_id", *req.IndexId, err)
				return
			}
			fields.IndexItemCode = fields.Index.Code
		}
		if req.ItemId != nil {
			if fields.Item, err = refs.ItemById(ctx, *req.ItemId); err != nil {
				respondReferenceError(c, logger, "item_id", *req.ItemId, err)
				return
			}
			fields.IndexItemCode = fields.Item.Code
		}
		if req.AllocationLevelId != nil {
			if fields.AllocationLevel, err = refs.ItemById(ctx, *req.AllocationLevelId); err != nil {
				respondReferenceError(c, logger, "allocation_level_id", *req.AllocationLevelId, err)
				return
			}
		}
		if req.AffiliatedFrcId != nil {
			if fields.AffiliatedFrc, err = refs.FrcById(ctx, *req.AffiliatedFrcId); err != nil {
				respondReferenceError(c, logger, "affiliated_frc_id", *req.AffiliatedFrcId, err)
				return
			}
		}
		if req.OriginalCurrencyId != nil {
			if fields.OriginalCurrency, err = refs.CurrencyById(ctx, *req.OriginalCurrencyId); err != nil {
				respondReferenceError(c, logger, "original_currency_id", *req.OriginalCurrencyId, err)
				return
			}
		}
		fields.SumInUsd = req.SumInUsd
		fields.SumInOriginalCurrency = req.SumInOriginalCurrency
		if req.Comments != nil {
			fields.Comments = *req.Comments
		}

		// Carry over the stored values for fields the request left out.
		existing, err := store.GetDataByData(ctx, nil, reports.NewData(fields))
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			config.LogError(logger, "server.go", "changeDataHandler", "GetDataByData", req, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load the stored fact"})
			return
		}
		if existing != nil {
			stored, err := store.DataFromRow(ctx, existing)
			if err != nil {
				config.LogError(logger, "server.go", "changeDataHandler", "DataFromRow", req, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load the stored fact"})
				return
			}
			if fields.Name == "" {
				fields.Name = stored.Name()
			}
			if req.SumInUsd == nil {
				fields.SumInUsd = stored.SumInUsd()
			}
			if req.SumInOriginalCurrency == nil {
				fields.SumInOriginalCurrency = stored.SumInOriginalCurrency()
			}
			if req.OriginalCurrencyId == nil {
				fields.OriginalCurrency = stored.OriginalCurrency()
			}
			if req.Comments == nil {
				fields.Comments = stored.Comments()
			}
		}
		if fields.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required for a new fact"})
			return
		}

		calculatorId := strings.TrimSpace(req.CalculatorId)
		if calculatorId == "" {
			calculatorId = uuid.NewString()
		}

		data, err := store.ChangeData(ctx, nil, reports.NewData(fields), models.ChangeDataOptions{
			Persist:      true,
			QueueChange:  true,
			CalculatorId: calculatorId,
		})
		if err != nil {
			config.LogError(logger, "server.go", "changeDataHandler", "ChangeData", req, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record the change"})
			return
		}

		row, err := store.GetDataByData(ctx, nil, data)
		if err != nil {
			config.LogError(logger, "server.go", "changeDataHandler", "GetDataByData stored", req, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load the recorded change"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": row.ID, "calculator_id": calculatorId})
	}
}

func respondReferenceError(c *gin.Context, logger *logrus.Logger, field string, id int, err error) {
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("wrong %s: %d", field, id)})
		return
	}
	config.LogError(logger, "server.go", "changeDataHandler", field, id, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reference data"})
}

// calculationStatusHandler reports the aggregate status of one calculator
// run. The error message is only exposed for failed runs.
func calculationStatusHandler(queue *models.DataChangeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		calculatorId := strings.TrimSpace(c.Query("calculator_id"))
		if calculatorId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "calculator_id is required"})
			return
		}

		changes, err := queue.CalculatorChangeList(c.Request.Context(), calculatorId)
		if err != nil {
			config.LogError(logger, "server.go", "calculationStatusHandler", "CalculatorChangeList", calculatorId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load the calculator changes"})
			return
		}
		if len(changes) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "wrong calculator id"})
			return
		}

		status, errorMessage, err := models.AggregateCalculatorStatus(changes)
		if err != nil {
			config.LogError(logger, "server.go", "calculationStatusHandler", "AggregateCalculatorStatus", calculatorId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		response := gin.H{"calculator_id": calculatorId, "status": status}
		if status == models.ChangeStatusFailure {
			response["error_message"] = errorMessage
		}
		c.JSON(http.StatusOK, response)
	}
}

type calculationRunRequest struct {
	CalculatorId string `json:"calculator_id"`
}

// calculationRunHandler triggers one queue-draining run, guarded by the
// same lock the periodic agent takes.
func calculationRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()

		var req calculationRunRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		calculatorId := strings.TrimSpace(req.CalculatorId)
		if calculatorId == "" {
			calculatorId = config.DefaultCalculatorId()
		}

		boundary, err := workflow.NewCalculationBoundaryFromEnv(ctx, config.GetDB())
		if err != nil {
			config.LogError(logger, "server.go", "calculationRunHandler", "NewCalculationBoundaryFromEnv", calculatorId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare the calculation"})
			return
		}
		err = workflow.WithLeaderLock(ctx, "fincalc:calculation", 5*time.Minute, func(ctx context.Context) error {
			return boundary.Calculate(ctx, calculatorId)
		})
		if err != nil {
			config.LogError(logger, "server.go", "calculationRunHandler", "Calculate", calculatorId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "calculation failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"calculator_id": calculatorId})
	}
}

// calculationIterateHandler triggers one full iterative recompute over
// the open periods.
func calculationIterateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()

		boundary, err := workflow.NewCalculationBoundaryFromEnv(ctx, config.GetDB())
		if err != nil {
			config.LogError(logger, "server.go", "calculationIterateHandler", "NewCalculationBoundaryFromEnv", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare the calculation"})
			return
		}
		err = workflow.WithLeaderLock(ctx, "fincalc:iteration", 5*time.Minute, func(ctx context.Context) error {
			return boundary.CalculateIteration(ctx)
		})
		if err != nil {
			config.LogError(logger, "server.go", "calculationIterateHandler", "CalculateIteration", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "iterative calculation failed"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// invalidateReferenceCacheHandler drops the cached reference catalogs so
// the next run reads fresh dictionaries.
func invalidateReferenceCacheHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := models.InvalidateReferenceCache(); err != nil {
			config.LogError(config.GetLogger(), "server.go", "invalidateReferenceCacheHandler", "InvalidateReferenceCache", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invalidate the reference cache"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	refs := models.NewReferenceService()
	store := models.NewReportService(refs)
	queue := models.NewDataChangeService(store)

	r.POST("/fincalc/data/change", changeDataHandler(refs, store))
	r.GET("/fincalc/calculation/status", calculationStatusHandler(queue))
	// Manual triggers for the periodic agent's work.
	r.POST("/fincalc/calculation/run", calculationRunHandler())
	r.POST("/fincalc/calculation/iterate", calculationIterateHandler())
	r.POST("/fincalc/refs/cache/invalidate", invalidateReferenceCacheHandler())
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateModels(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{"correlationId": cid}).Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
