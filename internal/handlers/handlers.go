package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/agri-inference/internal/auth"
	"github.com/example/agri-inference/internal/features"
	"github.com/example/agri-inference/internal/market"
	"github.com/example/agri-inference/internal/prediction"
	"github.com/example/agri-inference/internal/registry"
	"github.com/example/agri-inference/internal/storage"
	"github.com/example/agri-inference/internal/usecase"
	"github.com/example/agri-inference/internal/validate"
)

// MaxUploadSize is the default limit for an uploaded image.
const MaxUploadSize = 10 << 20

// multipartOverhead is the slack allowed on top of the file for the
// multipart envelope.
const multipartOverhead = 1 << 20

// maxFieldsBody limits form and JSON bodies on the crop and yield routes.
const maxFieldsBody = 1 << 20

// ModelStatus reports which models are serving.
type ModelStatus interface {
	Status() []registry.Status
}

// PriceLookup answers market price queries.
type PriceLookup interface {
	Lookup(ctx context.Context, q market.Query) (*market.Record, error)
}

// Dependencies are the collaborators the routes need. Market and AdminAuth
// are optional.
type Dependencies struct {
	Predictions   *usecase.PredictionUseCase
	Models        ModelStatus
	Uploads       *storage.UploadStore
	Market        PriceLookup
	AdminAuth     gin.HandlerFunc
	MaxUploadSize int64
	Logger        *zap.Logger
}

type routes struct {
	Dependencies
	logger *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router. The router must
// have the page templates installed with SetHTMLTemplate.
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = MaxUploadSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &routes{Dependencies: deps, logger: logger.Named("handlers")}

	router.GET("/health", h.health)

	router.GET("/", h.page("home.html"))
	router.GET("/crop", h.page("crop.html"))
	router.GET("/yield", h.page("yield.html"))
	router.GET("/disease", h.page("disease.html"))
	router.GET("/weather", h.page("weather.html"))

	router.POST("/predict_crop", h.predictCropPage)
	router.POST("/predict_yield", h.predictYieldPage)
	router.POST("/upload/", h.uploadPage)
	router.GET("/uploadimages/:name", h.uploadedImage)

	api := router.Group("/api")
	api.POST("/predict_crop", h.predictCropAPI)
	api.POST("/predict_yield", h.predictYieldAPI)
	api.POST("/predict_disease", h.predictDiseaseAPI)
	api.GET("/market-prices", h.marketPrices)

	admin := api.Group("")
	if deps.AdminAuth != nil {
		admin.Use(deps.AdminAuth)
	}
	admin.GET("/predictions/:id", h.predictionResult)
	admin.GET("/metrics", h.metrics)
}

func (h *routes) health(c *gin.Context) {
	models := gin.H{}
	if h.Models != nil {
		for _, s := range h.Models.Status() {
			state := "ready"
			if !s.Available {
				state = "unavailable"
			}
			models[string(s.ID)] = state
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "models": models})
}

func (h *routes) page(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, name, pageDefaults(name))
	}
}

func (h *routes) predictCropPage(c *gin.Context) {
	const page = "crop.html"
	form, err := h.formFields(c)
	if err != nil {
		pageError(c, page, err)
		return
	}
	in, err := validate.Crop(form)
	if err != nil {
		pageError(c, page, err)
		return
	}
	out, err := h.Predictions.PredictCrop(c.Request.Context(), in, usecase.SourceForm)
	if err != nil {
		pageError(c, page, err)
		return
	}
	c.Header(RequestIDHeader, out.RequestID)
	c.HTML(http.StatusOK, page, pageContext(page, out.Result))
}

func (h *routes) predictYieldPage(c *gin.Context) {
	const page = "yield.html"
	form, err := h.formFields(c)
	if err != nil {
		pageError(c, page, err)
		return
	}
	in, err := validate.Yield(form)
	if err != nil {
		pageError(c, page, err)
		return
	}
	out, err := h.Predictions.PredictYield(c.Request.Context(), in, usecase.SourceForm)
	if err != nil {
		pageError(c, page, err)
		return
	}
	c.Header(RequestIDHeader, out.RequestID)
	c.HTML(http.StatusOK, page, pageContext(page, out.Result))
}

// uploadPage keeps the stored image so the rendered page can show it.
func (h *routes) uploadPage(c *gin.Context) {
	const page = "disease.html"
	name, data, err := h.receiveUpload(c)
	if err != nil {
		pageError(c, page, err)
		return
	}
	out, err := h.Predictions.PredictDisease(c.Request.Context(), features.ImageInput{Data: data}, usecase.SourceForm)
	if err != nil {
		pageError(c, page, err)
		return
	}
	ctx := pageContext(page, out.Result)
	ctx["imagepath"] = "/uploadimages/" + name
	c.Header(RequestIDHeader, out.RequestID)
	c.HTML(http.StatusOK, page, ctx)
}

func (h *routes) uploadedImage(c *gin.Context) {
	data, err := h.Uploads.Read(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

func (h *routes) predictCropAPI(c *gin.Context) {
	fields, err := h.jsonFields(c)
	if err != nil {
		jsonError(c, err, http.StatusBadRequest)
		return
	}
	in, err := validate.Crop(fields)
	if err != nil {
		jsonError(c, err, http.StatusBadRequest)
		return
	}
	out, err := h.Predictions.PredictCrop(c.Request.Context(), in, usecase.SourceAPI)
	if err != nil {
		jsonError(c, err, http.StatusBadRequest)
		return
	}
	c.Header(RequestIDHeader, out.RequestID)
	c.JSON(http.StatusOK, jsonPayload(out.Result))
}

func (h *routes) predictYieldAPI(c *gin.Context) {
	fields, err := h.jsonFields(c)
	if err != nil {
		jsonError(c, err, http.StatusBadRequest)
		return
	}
	in, err := validate.Yield(fields)
	if err != nil {
		jsonError(c, err, http.StatusBadRequest)
		return
	}
	out, err := h.Predictions.PredictYield(c.Request.Context(), in, usecase.SourceAPI)
	if err != nil {
		jsonError(c, err, http.StatusBadRequest)
		return
	}
	c.Header(RequestIDHeader, out.RequestID)
	c.JSON(http.StatusOK, jsonPayload(out.Result))
}

// predictDiseaseAPI removes the stored upload once the response is ready.
func (h *routes) predictDiseaseAPI(c *gin.Context) {
	name, data, err := h.receiveUpload(c)
	if err != nil {
		jsonError(c, err, http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := h.Uploads.Remove(name); err != nil {
			h.logger.Debug("failed to remove upload", zap.String("name", name), zap.Error(err))
		}
	}()

	out, err := h.Predictions.PredictDisease(c.Request.Context(), features.ImageInput{Data: data}, usecase.SourceAPI)
	if err != nil {
		jsonError(c, err, http.StatusInternalServerError)
		return
	}
	c.Header(RequestIDHeader, out.RequestID)
	c.JSON(http.StatusOK, jsonPayload(out.Result))
}

func (h *routes) marketPrices(c *gin.Context) {
	q := market.Query{
		Commodity: c.Query("commodity"),
		State:     c.Query("state"),
		District:  c.Query("district"),
		Market:    c.Query("market"),
	}
	if err := q.Validate(); err != nil {
		jsonError(c, err, http.StatusBadRequest)
		return
	}
	if h.Market == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market price lookup is not configured"})
		return
	}
	record, err := h.Market.Lookup(c.Request.Context(), q)
	if err != nil {
		h.logger.Error("market price lookup failed", zap.Error(err))
		jsonError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": record})
}

func (h *routes) predictionResult(c *gin.Context) {
	requestID := c.Param("id")
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	if subject, ok := auth.GetSubject(c.Request.Context()); ok {
		h.logger.Info("prediction result requested", zap.String("subject", subject), zap.String("request_id", requestID))
	}
	log, err := h.Predictions.GetResult(c.Request.Context(), requestID)
	switch {
	case errors.Is(err, usecase.ErrAuditDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	case err != nil:
		jsonError(c, err, http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id": log.RequestID,
		"model":      log.Model,
		"source":     log.Source,
		"input":      rawJSON(log.Input),
		"output":     rawJSON(log.Output),
		"confidence": log.Confidence,
		"success":    log.Success,
		"error":      log.Error,
		"latency_ms": log.LatencyMs,
		"created_at": log.CreatedAt,
	})
}

func (h *routes) metrics(c *gin.Context) {
	if subject, ok := auth.GetSubject(c.Request.Context()); ok {
		h.logger.Info("metrics requested", zap.String("subject", subject))
	}
	summary, err := h.Predictions.GetMetricsSummary(c.Request.Context())
	if errors.Is(err, usecase.ErrAuditDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		jsonError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *routes) jsonFields(c *gin.Context) (validate.Fields, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxFieldsBody))
	if err != nil {
		if isTooLarge(err) {
			return validate.Fields{}, errBodyTooLarge
		}
		return validate.Fields{}, prediction.NewValidationError("", "unable to read request body")
	}
	return validate.JSONFields(body)
}

// formFields accepts both urlencoded and multipart form posts.
func (h *routes) formFields(c *gin.Context) (validate.Fields, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFieldsBody)
	err := c.Request.ParseMultipartForm(maxFieldsBody)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if isTooLarge(err) {
			return validate.Fields{}, errBodyTooLarge
		}
		return validate.Fields{}, prediction.NewValidationError("", "malformed form body")
	}
	return validate.FormFields(c.Request.PostForm), nil
}

// receiveUpload reads the "img" part and stores it under a unique name.
func (h *routes) receiveUpload(c *gin.Context) (string, []byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadSize+multipartOverhead)

	file, err := c.FormFile("img")
	if err != nil {
		if isTooLarge(err) {
			return "", nil, errUploadTooLarge
		}
		// A file input submitted with nothing selected arrives as a plain
		// value because its filename is empty.
		if form := c.Request.MultipartForm; form != nil {
			if _, ok := form.Value["img"]; ok {
				return "", nil, prediction.NewValidationError("", "No image selected")
			}
		}
		return "", nil, prediction.NewValidationError("", "No image file provided")
	}
	if file.Size > h.MaxUploadSize {
		return "", nil, errUploadTooLarge
	}

	data, err := readPart(file)
	if err != nil {
		return "", nil, err
	}
	name, err := h.Uploads.Save(file.Filename, data)
	if err != nil {
		h.logger.Error("failed to store upload", zap.Error(err))
		return "", nil, err
	}
	return name, data, nil
}

func readPart(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

type rawJSON string

// MarshalJSON embeds stored JSON as-is, or null when empty.
func (r rawJSON) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return []byte(r), nil
}
