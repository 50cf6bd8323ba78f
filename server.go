package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/verdecarbon/biochar_backend/config"
	"github.com/verdecarbon/biochar_backend/models"
	"github.com/verdecarbon/biochar_backend/qrgen"
	"github.com/verdecarbon/biochar_backend/recordstore"
	"github.com/verdecarbon/biochar_backend/reports"
	"github.com/verdecarbon/biochar_backend/utils"
	"github.com/verdecarbon/biochar_backend/workflow"
)

const defaultPort = "8080"

// application bundles the stores and workflow services the handlers need.
type application struct {
	shiftLogs     models.ShiftLogStore
	wasteRecords  models.WasteRecordStore
	transportLogs models.TransportLogStore
	engine        *workflow.AllocationEngine
	controller    *workflow.LifecycleController
	handoff       *workflow.HandoffService
	logger        *logrus.Logger
}

// app is published once by main after dependencies connect and read by
// handler goroutines; until then the readiness gate returns 503.
var app atomic.Pointer[application]

func activeApp() *application { return app.Load() }

// RateLimiter implements a simple fixed-window limit keyed by client IP.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// errorBody is the single error envelope every endpoint returns.
func errorBody(code, message string, details gin.H) gin.H {
	body := gin.H{"code": code, "message": message}
	for k, v := range details {
		body[k] = v
	}
	return gin.H{"error": body}
}

// bindJSON binds the request body and responds with per-field binding-tag
// details when validation fails. Returns false when the request was rejected.
func bindJSON(c *gin.Context, dest any) bool {
	err := c.ShouldBindJSON(dest)
	if err == nil {
		return true
	}
	var details gin.H
	if fields := utils.ProcessValidationErrors(err); len(fields) > 0 {
		details = gin.H{"fields": fields}
	}
	c.JSON(http.StatusBadRequest, errorBody("validation_error", "invalid request body", details))
	return false
}

// respondError maps the workflow error taxonomy to HTTP statuses and stable
// machine-readable codes. Anything unrecognized is treated as an adapter
// failure so callers can retry.
func respondError(c *gin.Context, err error) {
	var ve *utils.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", ve.Message, gin.H{"field": ve.Field}))
		return
	}
	var ise *utils.InsufficientStockError
	if errors.As(err, &ise) {
		c.JSON(http.StatusConflict, errorBody("insufficient_stock", ise.Error(), gin.H{
			"batch_id":  ise.BatchId,
			"requested": ise.Requested.String(),
			"available": ise.Available.String(),
		}))
		return
	}
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, errorBody("not_found", "record not found", nil))
	case errors.Is(err, utils.ErrDeliveryPending):
		c.JSON(http.StatusConflict, errorBody("delivery_pending", "delivery has not been confirmed yet", nil))
	case errors.Is(err, utils.ErrAlreadyCompleted):
		c.JSON(http.StatusConflict, errorBody("already_completed", "this step was already confirmed", nil))
	case errors.Is(err, workflow.ErrConfirmationInProgress):
		c.JSON(http.StatusConflict, errorBody("confirmation_in_progress", "another confirmation is in progress, retry shortly", nil))
	default:
		c.JSON(http.StatusBadGateway, errorBody("adapter_error", "upstream record store failed, retry shortly", nil))
	}
}

type remissionAllocationView struct {
	BatchId    string `json:"batch_id"`
	BatchCode  string `json:"batch_code"`
	QuantityKg string `json:"quantity_kg"`
}

type remissionSummary struct {
	ID           string                    `json:"id"`
	ClientName   string                    `json:"client_name"`
	EventDate    string                    `json:"event_date"`
	State        models.RemissionState     `json:"state"`
	TotalKg      string                    `json:"total_kg"`
	Allocations  []remissionAllocationView `json:"allocations"`
	DeliveryOpen bool                      `json:"delivery_open"`
	ReceiptOpen  bool                      `json:"receipt_open"`
}

func summarizeRemission(r *models.Remission) remissionSummary {
	state := r.State()
	allocations := make([]remissionAllocationView, 0, len(r.Allocations))
	total := decimal.Zero
	for _, a := range r.Allocations {
		allocations = append(allocations, remissionAllocationView{
			BatchId:    a.BatchId,
			BatchCode:  a.BatchCode,
			QuantityKg: a.RequestedQuantity.String(),
		})
		total = total.Add(a.RequestedQuantity)
	}
	return remissionSummary{
		ID:           r.ID,
		ClientName:   r.ClientName,
		EventDate:    r.EventDate.Format("2006-01-02"),
		State:        state,
		TotalKg:      total.String(),
		Allocations:  allocations,
		DeliveryOpen: workflow.PhaseOpen(state, models.PhaseDelivery),
		ReceiptOpen:  workflow.PhaseOpen(state, models.PhaseReceipt),
	}
}

// publicFormMiddleware marks the request as coming from the QR-addressed
// public forms. No auth: possession of the link is the access control.
func publicFormMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(utils.SetPublicFormInContext(c.Request.Context()))
		c.Next()
	}
}

// operatorMiddleware reads the identity header injected by the external auth
// proxy. The backend trusts the proxy; there is no session handling here.
func operatorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		operator := strings.TrimSpace(c.GetHeader("x-operator"))
		if operator == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("validation_error", "missing operator identity", nil))
			return
		}
		c.Request = c.Request.WithContext(utils.SetOperatorInContext(c.Request.Context(), operator))
		c.Next()
	}
}

func getRemissionSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		remission, err := activeApp().controller.GetRemission(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": summarizeRemission(remission)})
	}
}

func confirmDeliveryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var form workflow.DeliveryConfirmation
		if !bindJSON(c, &form) {
			return
		}
		remission, err := activeApp().controller.ConfirmDelivery(c.Request.Context(), c.Param("id"), form)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": summarizeRemission(remission)})
	}
}

func confirmReceiptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var form workflow.ReceiptConfirmation
		if !bindJSON(c, &form) {
			return
		}
		remission, err := activeApp().controller.ConfirmReceipt(c.Request.Context(), c.Param("id"), form)
		if err != nil {
			// The receipt is recorded even when the batch debit could not be
			// applied; the debit sits on the pending queue for replay.
			var dfe *workflow.DebitFailedError
			if errors.As(err, &dfe) && remission != nil {
				c.JSON(http.StatusOK, gin.H{
					"data":          summarizeRemission(remission),
					"debit_pending": true,
				})
				return
			}
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": summarizeRemission(remission)})
	}
}

func handoffQrHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		phase := models.HandoffPhase(c.Param("phase"))
		img, err := activeApp().handoff.HandoffImage(c.Request.Context(), c.Param("id"), phase)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "image/png", img)
	}
}

func listRemissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		remissions, err := activeApp().controller.ListRemissions(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		summaries := make([]remissionSummary, 0, len(remissions))
		for _, r := range remissions {
			summaries = append(summaries, summarizeRemission(r))
		}
		c.JSON(http.StatusOK, gin.H{"data": summaries})
	}
}

func createRemissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.CreateRemissionInput
		if !bindJSON(c, &input) {
			return
		}
		remission, err := activeApp().controller.CreateRemission(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		baseURL := strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))
		deliveryURL, _ := workflow.BuildHandoffURL(baseURL, remission.ID, models.PhaseDelivery)
		receiptURL, _ := workflow.BuildHandoffURL(baseURL, remission.ID, models.PhaseReceipt)
		c.JSON(http.StatusCreated, gin.H{
			"data": gin.H{
				"remission":    summarizeRemission(remission),
				"delivery_url": deliveryURL,
				"receipt_url":  receiptURL,
			},
		})
	}
}

func listBatchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		availability, err := activeApp().engine.UnreservedAvailability(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": availability})
	}
}

type shiftLogRequest struct {
	Operator        string  `json:"operator" binding:"required"`
	Kiln            string  `json:"kiln" binding:"required"`
	ShiftDate       string  `json:"shift_date" binding:"required"`
	FeedstockKg     float64 `json:"feedstock_kg" binding:"required,gt=0"`
	BiocharOutputKg float64 `json:"biochar_output_kg" binding:"required,gt=0"`
	Notes           string  `json:"notes"`
}

func getShiftLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		log, err := activeApp().shiftLogs.GetShiftLog(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": log})
	}
}

func listShiftLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logs, err := activeApp().shiftLogs.ListShiftLogs(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": logs})
	}
}

func createShiftLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req shiftLogRequest
		if !bindJSON(c, &req) {
			return
		}
		shiftDate, err := time.Parse("2006-01-02", req.ShiftDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("validation_error", "shift_date must be YYYY-MM-DD", gin.H{"field": "shift_date"}))
			return
		}
		created, err := activeApp().shiftLogs.CreateShiftLog(c.Request.Context(), &models.ShiftLog{
			Operator:        req.Operator,
			Kiln:            req.Kiln,
			ShiftDate:       shiftDate,
			FeedstockKg:     decimal.NewFromFloat(req.FeedstockKg),
			BiocharOutputKg: decimal.NewFromFloat(req.BiocharOutputKg),
			Notes:           req.Notes,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": created})
	}
}

type wasteRecordRequest struct {
	WasteType   string  `json:"waste_type" binding:"required"`
	QuantityKg  float64 `json:"quantity_kg" binding:"required,gt=0"`
	Disposal    string  `json:"disposal" binding:"required"`
	Observation string  `json:"observation"`
}

func listWasteRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := activeApp().wasteRecords.ListWasteRecords(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": records})
	}
}

func createWasteRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req wasteRecordRequest
		if !bindJSON(c, &req) {
			return
		}
		operator, _ := utils.GetOperatorFromContext(c.Request.Context())
		created, err := activeApp().wasteRecords.CreateWasteRecord(c.Request.Context(), &models.WasteRecord{
			WasteType:   req.WasteType,
			QuantityKg:  decimal.NewFromFloat(req.QuantityKg),
			Disposal:    req.Disposal,
			RecordedBy:  operator,
			RecordedAt:  time.Now().UTC(),
			Observation: req.Observation,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": created})
	}
}

type transportLogRequest struct {
	Origin        string  `json:"origin" binding:"required"`
	VehiclePlate  string  `json:"vehicle_plate" binding:"required"`
	DriverName    string  `json:"driver_name" binding:"required"`
	BiomassType   string  `json:"biomass_type" binding:"required"`
	LoadKg        float64 `json:"load_kg" binding:"required,gt=0"`
	TransportDate string  `json:"transport_date" binding:"required"`
}

func listTransportLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logs, err := activeApp().transportLogs.ListTransportLogs(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": logs})
	}
}

func createTransportLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transportLogRequest
		if !bindJSON(c, &req) {
			return
		}
		transportDate, err := time.Parse("2006-01-02", req.TransportDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("validation_error", "transport_date must be YYYY-MM-DD", gin.H{"field": "transport_date"}))
			return
		}
		created, err := activeApp().transportLogs.CreateTransportLog(c.Request.Context(), &models.TransportLog{
			Origin:        req.Origin,
			VehiclePlate:  req.VehiclePlate,
			DriverName:    req.DriverName,
			BiomassType:   req.BiomassType,
			LoadKg:        decimal.NewFromFloat(req.LoadKg),
			TransportDate: transportDate,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": created})
	}
}

func remissionReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		remissions, err := activeApp().controller.ListRemissions(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		var buf bytes.Buffer
		if err := reports.WriteRemissionRegister(&buf, remissions); err != nil {
			config.LogError(activeApp().logger, "server.go", "remissionReportHandler", "write register", nil, err)
			c.JSON(http.StatusInternalServerError, errorBody("adapter_error", "failed to build report", nil))
			return
		}
		filename := fmt.Sprintf("remisiones-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	}
}

// Ops tooling: replay batch debits that failed after receipt confirmation.
func debitReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		applied, err := activeApp().controller.ReplayPendingDebits(c.Request.Context())
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"applied":        applied,
				"error":          err.Error(),
				"correlation_id": cid,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"applied":        applied,
			"correlation_id": cid,
		})
	}
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
	// Until Redis and the record store are ready, app endpoints return 503.
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
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness.
		if activeApp() == nil || config.GetRedisDB() == nil {
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
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "x-operator", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production; the public forms
	// are unauthenticated).
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

	// Public QR-addressed endpoints: no auth, gated by lifecycle state.
	public := r.Group("/api/remisiones/:id", publicFormMiddleware())
	public.GET("", getRemissionSummaryHandler())
	public.POST("/entrega", confirmDeliveryHandler())
	public.POST("/recepcion", confirmReceiptHandler())
	public.GET("/handoff/:phase/qr.png", handoffQrHandler())

	// Operator endpoints: identity injected by the external auth proxy.
	operator := r.Group("/api", operatorMiddleware())
	operator.GET("/remisiones", listRemissionsHandler())
	operator.POST("/remisiones", createRemissionHandler())
	operator.GET("/batches", listBatchesHandler())
	operator.GET("/shift-logs", listShiftLogsHandler())
	operator.GET("/shift-logs/:id", getShiftLogHandler())
	operator.POST("/shift-logs", createShiftLogHandler())
	operator.GET("/waste-records", listWasteRecordsHandler())
	operator.POST("/waste-records", createWasteRecordHandler())
	operator.GET("/transport-logs", listTransportLogsHandler())
	operator.POST("/transport-logs", createTransportLogHandler())
	operator.GET("/reports/remisiones.xlsx", remissionReportHandler())

	uploads := r.Group("/uploads", operatorMiddleware())
	uploads.POST("/sign", signUploadHandler())
	uploads.POST("/complete", completeUploadHandler())
	uploads.GET("/object", uploadObjectHandler())
	uploads.DELETE("/object", deleteUploadObjectHandler())

	// Ops tooling (admin only via proxy routing).
	r.POST("/internal/ops/debits/replay", debitReplayHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody("not_found", "route not found", nil))
	})

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
	config.ConnectRedisWithRetry()

	if err := models.ValidateFieldMaps(); err != nil {
		logger.WithFields(logrus.Fields{"field": "fieldmaps"}).Panic(err.Error())
	}

	storeCfg := config.LoadRecordStoreConfig()
	storeClient, err := recordstore.NewClient(storeCfg, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "recordstore"}).Panic(err.Error())
	}

	remissions := models.NewRemissionStore(storeClient, logger)
	batches := models.NewBatchStore(storeClient, logger)
	ledger := workflow.NewRedisReservationLedger(config.GetRedisDB())
	engine := workflow.NewAllocationEngine(batches, ledger, logger)
	locker := workflow.NewRedisRemissionLocker(config.GetRedisLock())
	controller := workflow.NewLifecycleController(remissions, batches, ledger, engine, locker, logger)
	handoff := workflow.NewHandoffService(remissions, qrgen.NewClient(logger), os.Getenv("PUBLIC_BASE_URL"))

	app.Store(&application{
		shiftLogs:     models.NewShiftLogStore(storeClient, logger),
		wasteRecords:  models.NewWasteRecordStore(storeClient, logger),
		transportLogs: models.NewTransportLogStore(storeClient, logger),
		engine:        engine,
		controller:    controller,
		handoff:       handoff,
		logger:        logger,
	})

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

// customErrorLogger logs only requests that accumulated gin errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware enforces the fixed window per client IP.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}
