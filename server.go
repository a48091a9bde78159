package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/statements_backend/config"
	"bitbucket.org/mmdatafocus/statements_backend/models"
	"bitbucket.org/mmdatafocus/statements_backend/utils"
	"bitbucket.org/mmdatafocus/statements_backend/vision"
	"bitbucket.org/mmdatafocus/statements_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

const statementCacheTTL = 60 * time.Second

func statementCacheKey(id int) string {
	return "statements:detail:" + strconv.Itoa(id)
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseIdParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func writeWorkflowError(c *gin.Context, err error) {
	switch {
	case utils.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "statement not found"})
	case utils.IsValidationError(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger := config.GetLogger()
		config.LogError(logger, "server.go", "writeWorkflowError", "Workflow error", c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// uploadStatementHandler accepts a statement image plus its intake metadata
// and enqueues it for extraction. The image goes to object storage first; the
// row is only created once the bytes are safely stored.
func uploadStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		file, header, err := c.Request.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil || len(data) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image"})
			return
		}

		mode := models.StatementModeFull
		if strings.EqualFold(c.PostForm("mode"), string(models.StatementModeQuantityOnly)) {
			mode = models.StatementModeQuantityOnly
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "image/jpeg"
		}
		objectKey := "statements/" + time.Now().UTC().Format("2006/01/02") + "/" + uuid.NewString()
		if err := utils.StoreStatementImage(c.Request.Context(), objectKey, data, contentType); err != nil {
			config.LogError(logger, "server.go", "uploadStatementHandler", "Storing statement image", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store image"})
			return
		}

		stmt := models.Statement{
			Status:         models.StatementStatusPending,
			Mode:           mode,
			VendorNameRaw:  strings.TrimSpace(c.PostForm("vendor_name")),
			ImageObjectKey: objectKey,
		}
		if err := config.GetDB().WithContext(c.Request.Context()).Create(&stmt).Error; err != nil {
			config.LogError(logger, "server.go", "uploadStatementHandler", "Creating statement", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create statement"})
			return
		}

		config.PublishStatementNudge(c.Request.Context(), strconv.Itoa(stmt.ID))
		c.JSON(http.StatusCreated, gin.H{"id": stmt.ID, "status": stmt.Status})
	}
}

func getStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdParam(c, "id")
		if !ok {
			return
		}

		// Review screens poll while a statement is processing; a short cache
		// keeps that cheap. Mutating endpoints invalidate the key.
		var cached models.Statement
		if hit, err := config.GetRedisObject(statementCacheKey(id), &cached); err == nil && hit {
			c.JSON(http.StatusOK, cached)
			return
		}

		var stmt models.Statement
		err := config.GetDB().WithContext(c.Request.Context()).
			Preload("LineItems").
			Take(&stmt, id).Error
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "statement not found"})
			return
		}
		if err := config.SetRedisObject(statementCacheKey(id), stmt, statementCacheTTL); err != nil {
			config.GetLogger().WithFields(logrus.Fields{"statement_id": id}).Warn("statement cache write failed: " + err.Error())
		}
		c.JSON(http.StatusOK, stmt)
	}
}

func listStatementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context()).Model(&models.Statement{})
		if status := strings.TrimSpace(c.Query("status")); status != "" {
			db = db.Where("status = ?", status)
		}
		if vendorId := strings.TrimSpace(c.Query("vendor_id")); vendorId != "" {
			db = db.Where("vendor_id = ?", vendorId)
		}
		limit := config.IntFromEnv("STATEMENT_LIST_LIMIT", 50)
		if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 200 {
			limit = v
		}
		offset := 0
		if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
			offset = v
		}

		var statements []models.Statement
		if err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&statements).Error; err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"statements": statements})
	}
}

func getStatementImageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdParam(c, "id")
		if !ok {
			return
		}
		var stmt models.Statement
		if err := config.GetDB().WithContext(c.Request.Context()).Select("id,image_object_key").Take(&stmt, id).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "statement not found"})
			return
		}
		data, err := utils.FetchStatementImage(c.Request.Context(), stmt.ImageObjectKey)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.Data(http.StatusOK, "image/jpeg", data)
	}
}

type lineEditRequest struct {
	Name               *string          `json:"name"`
	Specification      *string          `json:"specification"`
	Qty                *decimal.Decimal `json:"qty"`
	UnitPrice          *decimal.Decimal `json:"unit_price"`
	Amount             *decimal.Decimal `json:"amount"`
	MatchedOrderId     *int             `json:"matched_order_id"`
	MatchedOrderLineId *int             `json:"matched_order_line_id"`
}

// editStatementLineHandler persists a single field-level edit immediately, so
// a half-reviewed statement survives a closed browser tab. The terminal flip
// still only happens at confirm time.
func editStatementLineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdParam(c, "id")
		if !ok {
			return
		}
		lineId, ok := parseIdParam(c, "lineId")
		if !ok {
			return
		}
		var req lineEditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		var stmt models.Statement
		if err := config.GetDB().WithContext(c.Request.Context()).Select("id,status").Take(&stmt, id).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "statement not found"})
			return
		}
		if stmt.Status.IsTerminal() {
			c.JSON(http.StatusConflict, gin.H{"error": "statement is already finalized"})
			return
		}

		updates := map[string]interface{}{}
		if req.Name != nil {
			updates["name"] = *req.Name
		}
		if req.Specification != nil {
			updates["specification"] = *req.Specification
		}
		if req.Qty != nil {
			updates["qty"] = *req.Qty
		}
		if req.UnitPrice != nil {
			updates["unit_price"] = *req.UnitPrice
		}
		if req.Amount != nil {
			updates["amount"] = *req.Amount
		}
		if req.MatchedOrderLineId != nil {
			updates["matched_order_id"] = req.MatchedOrderId
			updates["matched_order_line_id"] = req.MatchedOrderLineId
		}
		if len(updates) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
			return
		}

		result := config.GetDB().WithContext(c.Request.Context()).
			Model(&models.StatementLineItem{}).
			Where("id = ? AND statement_id = ?", lineId, id).
			Updates(updates)
		if result.Error != nil {
			writeWorkflowError(c, result.Error)
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "line item not found"})
			return
		}
		_ = config.RemoveRedisKey(statementCacheKey(id))
		c.Status(http.StatusNoContent)
	}
}

func confirmStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdParam(c, "id")
		if !ok {
			return
		}
		var input workflow.ConfirmStatementInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		input.StatementId = id
		if input.ConfirmedBy == "" {
			if name, ok := utils.GetReviewerNameFromContext(c.Request.Context()); ok {
				input.ConfirmedBy = name
			}
		}

		if err := workflow.ConfirmStatement(c.Request.Context(), config.GetDB(), input); err != nil {
			writeWorkflowError(c, err)
			return
		}
		_ = config.RemoveRedisKey(statementCacheKey(id))
		c.JSON(http.StatusOK, gin.H{"id": id, "status": models.StatementStatusConfirmed})
	}
}

func rejectStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdParam(c, "id")
		if !ok {
			return
		}
		var body struct {
			RejectedBy string `json:"rejected_by"`
		}
		_ = c.ShouldBindJSON(&body)
		if body.RejectedBy == "" {
			body.RejectedBy = "reviewer"
		}

		if err := workflow.RejectStatement(c.Request.Context(), config.GetDB(), id, body.RejectedBy); err != nil {
			writeWorkflowError(c, err)
			return
		}
		_ = config.RemoveRedisKey(statementCacheKey(id))
		c.JSON(http.StatusOK, gin.H{"id": id, "status": models.StatementStatusRejected})
	}
}

func requeueStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdParam(c, "id")
		if !ok {
			return
		}
		if err := workflow.RequeueStatement(c.Request.Context(), config.GetDB(), id); err != nil {
			writeWorkflowError(c, err)
			return
		}
		_ = config.RemoveRedisKey(statementCacheKey(id))
		config.PublishStatementNudge(c.Request.Context(), strconv.Itoa(id))
		c.JSON(http.StatusOK, gin.H{"id": id, "status": models.StatementStatusQueued})
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
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
		if config.GetDB() == nil {
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
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/statements", uploadStatementHandler())
	r.GET("/statements", listStatementsHandler())
	r.GET("/statements/:id", getStatementHandler())
	r.GET("/statements/:id/image", getStatementImageHandler())
	r.PUT("/statements/:id/lines/:lineId", editStatementLineHandler())
	r.POST("/statements/:id/confirm", confirmStatementHandler())
	r.POST("/statements/:id/reject", rejectStatementHandler())
	// Ops tooling: put a failed statement back in line without waiting out the backoff.
	r.POST("/internal/ops/statements/:id/requeue", requeueStatementHandler())
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
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	visionClient, err := vision.NewClient()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "vision"}).Panic(err.Error())
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	worker := workflow.NewWorker(db, logger, visionClient)
	go worker.Run(workerCtx)
	go workflow.RunStaleSweeper(
		workerCtx, db, logger,
		time.Duration(config.IntFromEnv("STATEMENT_SWEEP_INTERVAL_MIN", 5))*time.Minute,
		worker.ClaimTimeout,
	)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("statement API listening on http://localhost:", port, "/")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelWorkers()

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
