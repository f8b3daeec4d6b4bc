package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bitbucket.org/mmtopup/recon_backend/config"
	"bitbucket.org/mmtopup/recon_backend/middlewares"
	"bitbucket.org/mmtopup/recon_backend/models"
	"bitbucket.org/mmtopup/recon_backend/reports"
	"bitbucket.org/mmtopup/recon_backend/utils"
	"bitbucket.org/mmtopup/recon_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const defaultPort = "8080"

// maxFileSize bounds one settlement batch upload (thousands to low tens of
// thousands of records, not streaming).
const maxFileSize = 64 << 20

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

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the DB is ready, app endpoints return 503.
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	api := r.Group("/api/v1", middlewares.AuthMiddleware())
	{
		api.GET("/suppliers", listSuppliersHandler)
		api.POST("/suppliers/:code/settlement-files", ingestSettlementFileHandler)
		api.GET("/runs", listRunsHandler)
		api.GET("/runs/:id", getRunHandler)
		api.GET("/runs/:id/audit", getRunAuditHandler)
		api.GET("/runs/:id/audit/verify", verifyRunAuditHandler)
		api.GET("/runs/:id/export", exportRunHandler)
		api.POST("/matches/:id/resolve", resolveMatchHandler)
		api.POST("/sla-check", slaCheckHandler)
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server: " + err.Error())
		}
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()
	if os.Getenv("RUN_MIGRATIONS") == "true" {
		models.MigrateTable()
	}

	<-sigCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown: " + err.Error())
	}
}

type ingestRequest struct {
	FileName string `json:"file_name" binding:"required"`
	// Content is base64 for JSON ingestion; multipart uploads use the "file"
	// form field instead.
	Content string `json:"content"`
	Force   bool   `json:"force"`
}

func ingestSettlementFileHandler(c *gin.Context) {
	db := config.GetDB()
	logger := config.GetLogger()

	supplier, err := models.GetSupplierByCode(db, c.Param("code"))
	if err != nil {
		respondNotFound(c, err, "supplier")
		return
	}
	if supplier.IsActive != nil && !*supplier.IsActive {
		c.JSON(http.StatusConflict, gin.H{"error": utils.ErrorSupplierUnknown.Error()})
		return
	}

	fileName, raw, force, err := readSettlementUpload(c)
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	if force {
		ctx = utils.SetForceReprocessInContext(ctx, true)
	}

	run, err := workflow.ProcessSettlementFile(ctx, db, logger, models.NewLedgerSource(db), supplier, fileName, raw)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if run == nil {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error(), "run": run})
		return
	}
	c.JSON(http.StatusOK, run)
}

func readSettlementUpload(c *gin.Context) (fileName string, raw []byte, force bool, err error) {
	if file, fhErr := c.FormFile("file"); fhErr == nil {
		if file.Size > maxFileSize {
			return "", nil, false, fmt.Errorf("file exceeds %d bytes", maxFileSize)
		}
		f, openErr := file.Open()
		if openErr != nil {
			return "", nil, false, openErr
		}
		defer f.Close()
		raw, err = io.ReadAll(io.LimitReader(f, maxFileSize))
		if err != nil {
			return "", nil, false, err
		}
		return file.Filename, raw, c.Query("force") == "true", nil
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return "", nil, false, fmt.Errorf("validation failed: %v", utils.ProcessValidationErrors(err))
		}
		return "", nil, false, err
	}
	raw, err = base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return "", nil, false, fmt.Errorf("content is not valid base64: %w", err)
	}
	if len(raw) == 0 {
		return "", nil, false, errors.New("settlement file is empty")
	}
	return req.FileName, raw, req.Force, nil
}

func listSuppliersHandler(c *gin.Context) {
	suppliers, err := models.ListSuppliers(config.GetDB(), c.Query("active") == "true")
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, suppliers)
}

func listRunsHandler(c *gin.Context) {
	supplierId, _ := strconv.Atoi(c.Query("supplier_id"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(config.SearchLimit)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	runs, err := models.ListReconciliationRuns(config.GetDB(), supplierId, models.RunStatus(c.Query("status")), limit, offset)
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func getRunHandler(c *gin.Context) {
	db := config.GetDB()
	run, err := models.GetReconciliationRun(db, c.Param("id"))
	if err != nil {
		respondNotFound(c, err, "run")
		return
	}
	matches, err := models.ListRunMatches(db, run.ID, c.Query("discrepancies_only") == "true")
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "matches": matches})
}

func getRunAuditHandler(c *gin.Context) {
	events, err := models.NewAuditLog(config.GetDB()).ListRunEvents(c.Param("id"))
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func verifyRunAuditHandler(c *gin.Context) {
	verification, err := models.NewAuditLog(config.GetDB()).VerifyRunChain(c.Param("id"))
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, verification)
}

func exportRunHandler(c *gin.Context) {
	db := config.GetDB()
	run, err := models.GetReconciliationRun(db, c.Param("id"))
	if err != nil {
		respondNotFound(c, err, "run")
		return
	}
	supplier, err := models.GetSupplier(db, run.SupplierId)
	if err != nil {
		respondInternal(c, err)
		return
	}
	matches, err := models.ListRunMatches(db, run.ID, false)
	if err != nil {
		respondInternal(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=reconciliation_%s.xlsx", run.ID))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := reports.WriteRunWorkbook(c.Writer, supplier, run, matches); err != nil {
		config.LogError(config.GetLogger(), "server.go", "exportRunHandler", "writing workbook", run.ID, err)
	}
}

type resolveRequest struct {
	Notes string `json:"notes" binding:"required"`
}

func resolveMatchHandler(c *gin.Context) {
	db := config.GetDB()

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	operatorId, ok := utils.GetOperatorIdFromContext(c.Request.Context())
	if !ok || operatorId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Operator-Id header is required for manual resolution"})
		return
	}

	match, err := models.ResolveManually(db, c.Param("id"), operatorId, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrorResolutionAlreadySet):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, utils.ErrorRecordNotFound):
			respondNotFound(c, err, "match")
		default:
			respondBadRequest(c, err)
		}
		return
	}

	run, err := models.GetReconciliationRun(db, match.RunId)
	if err != nil {
		respondInternal(c, err)
		return
	}
	if _, err := models.NewAuditLog(db).Append(models.AppendInput{
		RunId:      &match.RunId,
		SupplierId: run.SupplierId,
		EventType:  models.AuditEventMatchResolvedByUser,
		ActorType:  models.ActorTypeOperator,
		ActorId:    operatorId,
		EntityType: "transaction_match",
		EntityId:   match.ID,
		Payload:    gin.H{"notes": req.Notes},
	}); err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func slaCheckHandler(c *gin.Context) {
	maxAgeHours, _ := strconv.Atoi(c.DefaultQuery("max_age_hours", "48"))
	breaches, err := workflow.CheckSettlementSLA(config.GetDB(), config.GetLogger(),
		time.Duration(maxAgeHours)*time.Hour, time.Now().UTC())
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"breaches": breaches})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func respondNotFound(c *gin.Context, err error, entity string) {
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": entity + " not found"})
		return
	}
	respondInternal(c, err)
}

func respondInternal(c *gin.Context, err error) {
	config.LogError(config.GetLogger(), "server.go", c.FullPath(), "handling request", nil, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
