package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/septivank/waterquality-analytics-worker/internal/fleet"
	"github.com/septivank/waterquality-analytics-worker/internal/metrics"
	"github.com/septivank/waterquality-analytics-worker/internal/service"
	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
	"github.com/septivank/waterquality-analytics-worker/internal/validator"
	"go.uber.org/zap"
)

// Handler serves ad-hoc analyses of inline readings
type Handler struct {
	analyzer  *service.Analyzer
	validator *validator.Validator
	logger    *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(analyzer *service.Analyzer, validator *validator.Validator, logger *zap.Logger) *Handler {
	return &Handler{analyzer: analyzer, validator: validator, logger: logger}
}

// SeriesPayload is one parameter's raw readings
type SeriesPayload struct {
	SensorID  string                `json:"sensor_id,omitempty"`
	Parameter string                `json:"parameter" binding:"required"`
	Samples   []validator.RawSample `json:"samples" binding:"required"`
}

type pointAnomalyRequest struct {
	SeriesPayload
	Detection *service.DetectionParams `json:"detection"`
}

type correlationRequest struct {
	X          SeriesPayload `json:"x" binding:"required"`
	Y          SeriesPayload `json:"y" binding:"required"`
	Confidence *float64      `json:"confidence"`
}

type fleetRequest struct {
	Series    []SeriesPayload          `json:"series" binding:"required,min=1,dive"`
	Detection *service.DetectionParams `json:"detection"`
}

type describeRequest struct {
	Series []SeriesPayload `json:"series" binding:"required,min=1,dive"`
}

// response wraps a result with the readings validation dropped
type response struct {
	Result   any        `json:"result"`
	Rejected rejections `json:"rejected,omitempty"`
}

// PointAnomalies handles POST /api/v1/anomalies
func (h *Handler) PointAnomalies(c *gin.Context) {
	var req pointAnomalyRequest
	if !h.bind(c, &req) {
		return
	}

	rejected := rejections{}
	series, ok := h.series(c, req.SeriesPayload, rejected)
	if !ok {
		return
	}

	result, err := h.analyzer.PointAnomalies(series, req.Detection)
	if err != nil {
		h.fail(c, service.KindPointAnomaly, err)
		return
	}
	result.SensorID, result.Parameter = req.SensorID, req.Parameter
	h.ok(c, service.KindPointAnomaly, result, rejected)
}

// Correlation handles POST /api/v1/correlation
func (h *Handler) Correlation(c *gin.Context) {
	var req correlationRequest
	if !h.bind(c, &req) {
		return
	}

	rejected := rejections{}
	x, ok := h.series(c, req.X, rejected)
	if !ok {
		return
	}
	y, ok := h.series(c, req.Y, rejected)
	if !ok {
		return
	}

	pair, err := timeseries.NewPair(x, y)
	if err != nil {
		h.fail(c, service.KindCorrelation, err)
		return
	}

	report, err := h.analyzer.Correlation(pair, req.Confidence)
	if err != nil {
		h.fail(c, service.KindCorrelation, err)
		return
	}
	h.ok(c, service.KindCorrelation, report, rejected)
}

// Trend handles POST /api/v1/trend
func (h *Handler) Trend(c *gin.Context) {
	var req SeriesPayload
	if !h.bind(c, &req) {
		return
	}

	rejected := rejections{}
	series, ok := h.series(c, req, rejected)
	if !ok {
		return
	}

	report, err := h.analyzer.Trend(series)
	if err != nil {
		h.fail(c, service.KindTrend, err)
		return
	}
	h.ok(c, service.KindTrend, report, rejected)
}

// Decomposition handles POST /api/v1/decomposition
func (h *Handler) Decomposition(c *gin.Context) {
	var req SeriesPayload
	if !h.bind(c, &req) {
		return
	}

	rejected := rejections{}
	series, ok := h.series(c, req, rejected)
	if !ok {
		return
	}

	d, err := h.analyzer.Decompose(series)
	if err != nil {
		h.fail(c, service.KindDecompose, err)
		return
	}
	h.ok(c, service.KindDecompose, d, rejected)
}

// FleetSummary handles POST /api/v1/fleet/summary
func (h *Handler) FleetSummary(c *gin.Context) {
	var req fleetRequest
	if !h.bind(c, &req) {
		return
	}

	rejected := rejections{}
	data := make(map[fleet.Key]timeseries.Series, len(req.Series))
	for _, payload := range req.Series {
		key := fleet.Key{SensorID: payload.SensorID, Parameter: payload.Parameter}
		if _, dup := data[key]; dup {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("duplicate series %s/%s", key.SensorID, key.Parameter)})
			return
		}
		series, ok := h.series(c, payload, rejected)
		if !ok {
			return
		}
		data[key] = series
	}

	summary, err := h.analyzer.FleetSummary(c.Request.Context(), data, req.Detection)
	if err != nil {
		h.fail(c, service.KindFleetSummary, err)
		return
	}
	h.ok(c, service.KindFleetSummary, summary, rejected)
}

// Describe handles POST /api/v1/describe
func (h *Handler) Describe(c *gin.Context) {
	var req describeRequest
	if !h.bind(c, &req) {
		return
	}

	rejected := rejections{}
	names := make([]string, len(req.Series))
	series := make([]timeseries.Series, len(req.Series))
	for i, payload := range req.Series {
		s, ok := h.series(c, payload, rejected)
		if !ok {
			return
		}
		names[i], series[i] = payload.Parameter, s
	}

	result, err := h.analyzer.Describe(names, series)
	if err != nil {
		h.fail(c, service.KindDescribe, err)
		return
	}
	h.ok(c, service.KindDescribe, result, rejected)
}

type rejections map[string][]validator.Rejection

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// series validates a payload into a series and records what was dropped.
// It writes the error response itself when the payload is unusable.
func (h *Handler) series(c *gin.Context, payload SeriesPayload, rejected rejections) (timeseries.Series, bool) {
	series, dropped, err := h.validator.BuildSeries(payload.Parameter, payload.Samples)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return timeseries.Series{}, false
	}

	if len(dropped) > 0 {
		key := payload.Parameter
		if payload.SensorID != "" {
			key = payload.SensorID + "/" + payload.Parameter
		}
		rejected[key] = append(rejected[key], dropped...)
		metrics.SamplesRejected.WithLabelValues(payload.Parameter).Add(float64(len(dropped)))
	}
	return series, true
}

func (h *Handler) ok(c *gin.Context, kind string, result any, rejected rejections) {
	metrics.AnalysisRunsTotal.WithLabelValues(kind, "succeeded", "http").Inc()
	observe(c, kind)
	c.JSON(http.StatusOK, response{Result: result, Rejected: rejected})
}

func (h *Handler) fail(c *gin.Context, kind string, err error) {
	observe(c, kind)
	if service.IsAnalysisError(err) {
		metrics.AnalysisRunsTotal.WithLabelValues(kind, "failed", "http").Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	h.logger.Error("analysis failed",
		zap.String("kind", kind),
		zap.String("request_id", c.GetString("request_id")),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func observe(c *gin.Context, kind string) {
	if start, ok := c.Get(startKey); ok {
		metrics.AnalysisDuration.WithLabelValues(kind).Observe(time.Since(start.(time.Time)).Seconds())
	}
}
