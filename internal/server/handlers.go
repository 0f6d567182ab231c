package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/attribute"
	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/internal/describer"
	"github.com/inferloop/tabsynth/internal/generators"
	"github.com/inferloop/tabsynth/internal/observability/metrics"
	"github.com/inferloop/tabsynth/internal/privacy"
	"github.com/inferloop/tabsynth/internal/storage"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/interfaces"
	"github.com/inferloop/tabsynth/pkg/models"
)

// Handlers serves the description API
type Handlers struct {
	store      interfaces.DescriptionStore
	base       describer.Config
	generators *generators.Factory
	metrics    *metrics.PrometheusMetrics
	logger     *logrus.Logger
	maxRows    int
}

// NewHandlers creates the API handlers. base supplies the describer settings
// a request does not override.
func NewHandlers(store interfaces.DescriptionStore, base describer.Config, maxRows int, collector *metrics.PrometheusMetrics, logger *logrus.Logger) *Handlers {
	if logger == nil {
		logger = logrus.New()
	}
	if maxRows <= 0 {
		maxRows = constants.MaxGenerationSize
	}

	return &Handlers{
		store:      store,
		base:       base,
		generators: generators.NewFactory(logger),
		metrics:    collector,
		logger:     logger,
		maxRows:    maxRows,
	}
}

// DescribeRequest is the body of POST /api/v1/descriptions. Unset fields fall
// back to the server's configuration.
type DescribeRequest struct {
	ID                string        `json:"id,omitempty"`
	Mode              string        `json:"mode,omitempty"`
	Epsilon           *float64      `json:"epsilon,omitempty"`
	K                 *int          `json:"k,omitempty"`
	HistogramBins     string        `json:"histogram_bins,omitempty"`
	CategoryThreshold *int          `json:"category_threshold,omitempty"`
	Seed              *int64        `json:"seed,omitempty"`
	Categorical       []string      `json:"categorical,omitempty"`
	CandidateKeys     []string      `json:"candidate_keys,omitempty"`
	Table             *models.Table `json:"table"`
}

// DescribeResponse carries the stored description and the budget it spent
type DescribeResponse struct {
	ID           string                      `json:"id"`
	Mode         string                      `json:"mode"`
	EpsilonSpent float64                     `json:"epsilon_spent"`
	Ledger       []privacy.BudgetTransaction `json:"ledger"`
	Description  *models.DatasetDescription  `json:"description"`
}

// GenerateRequest is the body of POST /api/v1/descriptions/{id}/generate
type GenerateRequest struct {
	N    int    `json:"n"`
	Seed int64  `json:"seed"`
	Mode string `json:"mode,omitempty"`
}

// Health reports liveness and whether the store answers
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	storeStatus := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		storeStatus = err.Error()
	}

	h.writeJSON(w, code, map[string]string{
		"status":  status,
		"version": constants.AppVersion,
		"storage": storeStatus,
	})
}

// CreateDescription describes the posted table and stores the result
func (h *Handlers) CreateDescription(w http.ResponseWriter, r *http.Request) {
	var req DescribeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if req.Table == nil {
		h.writeError(w, r, errors.NewValidationError(errors.CodeMissingField, "table is required"))
		return
	}

	id := req.ID
	if id == "" {
		id = storage.NewID()
	} else if err := models.ValidateDescriptionID(id); err != nil {
		h.writeError(w, r, err)
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = constants.ModeCorrelated
	}

	config, err := h.describerConfig(&req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	d, err := describer.New(config, h.logger, h.metrics)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := d.Describe(r.Context(), mode, req.Table)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.store.Save(r.Context(), id, result.Description); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"id":            id,
		"mode":          mode,
		"epsilon_spent": result.Ledger.Total(),
		"request_id":    getRequestID(r),
	}).Info("Description stored")

	h.writeJSON(w, http.StatusCreated, DescribeResponse{
		ID:           id,
		Mode:         mode,
		EpsilonSpent: result.Ledger.Total(),
		Ledger:       result.Ledger.Transactions(),
		Description:  result.Description,
	})
}

// ListDescriptions returns the stored ids
func (h *Handlers) ListDescriptions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

// GetDescription returns one stored description
func (h *Handlers) GetDescription(w http.ResponseWriter, r *http.Request) {
	desc, err := h.store.Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, desc)
}

// DeleteDescription removes one stored description
func (h *Handlers) DeleteDescription(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Generate samples rows from a stored description. Clients asking for
// text/csv get CSV; everyone else gets the generation result as JSON.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if req.N <= 0 || req.N > h.maxRows {
		h.writeError(w, r, errors.NewValidationError(errors.CodeOutOfRange,
			fmt.Sprintf("n must be between 1 and %d, got %d", h.maxRows, req.N)))
		return
	}
	if req.Mode != "" && !h.generators.IsSupported(req.Mode) {
		h.writeError(w, r, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("unknown generation mode %q", req.Mode)))
		return
	}

	desc, err := h.store.Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.generators.Run(r.Context(), &models.GenerationRequest{
		ID:          getRequestID(r),
		Mode:        req.Mode,
		NumTuples:   req.N,
		Seed:        req.Seed,
		Description: desc,
	}, h.metrics)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), constants.ContentTypeCSV) {
		w.Header().Set(constants.HeaderContentType, constants.ContentTypeCSV)
		w.WriteHeader(http.StatusOK)
		if err := dataset.WriteCSV(r.Context(), w, result.Table, dataset.WriteOptions{}); err != nil {
			h.logger.WithError(err).WithField("request_id", getRequestID(r)).Error("Failed to stream CSV")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// NotFound answers unknown paths
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	err := errors.NewNotFoundError(fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	h.writeError(w, r, err)
}

// MethodNotAllowed answers known paths called with the wrong method
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	err := errors.NewValidationError(errors.CodeInvalidInput, fmt.Sprintf("method %s not allowed", r.Method))
	err.HTTPStatus = http.StatusMethodNotAllowed
	h.writeError(w, r, err)
}

// describerConfig applies the request's overrides to the base configuration
func (h *Handlers) describerConfig(req *DescribeRequest) (describer.Config, error) {
	config := h.base
	if req.Epsilon != nil {
		config.Epsilon = *req.Epsilon
	}
	if req.K != nil {
		config.K = *req.K
	}
	if req.CategoryThreshold != nil {
		config.CategoryThreshold = *req.CategoryThreshold
	}
	if req.Seed != nil {
		config.Seed = *req.Seed
	}
	if req.HistogramBins != "" {
		size, err := attribute.ParseHistogramSize(req.HistogramBins)
		if err != nil {
			return config, err
		}
		config.HistogramSize = size
	}
	if len(req.Categorical) > 0 {
		config.Categorical = flags(req.Categorical)
	}
	if len(req.CandidateKeys) > 0 {
		config.CandidateKeys = flags(req.CandidateKeys)
	}
	return config, nil
}

func flags(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, name := range names {
		m[name] = true
	}
	return m
}

func (h *Handlers) decode(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			appErr := errors.NewValidationError(errors.CodeInvalidInput, "request body too large")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			return appErr
		}
		return errors.NewValidationError(errors.CodeInvalidFormat, "invalid request body").
			WithDetails(err.Error())
	}
	return nil
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeError answers with the AppError's status. Foreign errors are logged
// and hidden behind a generic internal error.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.NewInternalError("internal server error")
	}
	status := errors.HTTPStatus(appErr)

	entry := h.logger.WithFields(logrus.Fields{
		"path":       r.URL.Path,
		"status":     status,
		"code":       appErr.Code,
		"request_id": getRequestID(r),
		"error":      err.Error(),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	h.writeJSON(w, status, errors.ErrorResponse{
		Error:     appErr,
		RequestID: getRequestID(r),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}
