package handlers

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/tcg-market-report/internal/models"
	"github.com/codyseavey/tcg-market-report/internal/services"
)

// maxImageBytes bounds uploaded card photos
const maxImageBytes = 10 << 20

// FetcherStatusProvider reports the state of the outbound fetch layer
type FetcherStatusProvider interface {
	Status() services.FetcherStatus
}

type ReportHandler struct {
	registry    *services.RunRegistry
	store       *services.ReportStore
	fetcher     FetcherStatusProvider
	defaultLang string
}

func NewReportHandler(registry *services.RunRegistry, store *services.ReportStore, fetcher FetcherStatusProvider, defaultLang string) *ReportHandler {
	return &ReportHandler{
		registry:    registry,
		store:       store,
		fetcher:     fetcher,
		defaultLang: defaultLang,
	}
}

type createReportRequest struct {
	models.CardIdentity
	Lang string `json:"lang"`
}

func (h *ReportHandler) lang(requested string) string {
	if requested == "" {
		requested = h.defaultLang
	}
	return services.NormalizeReportLang(requested)
}

// CreateReport starts a run for a known card identity
func (h *ReportHandler) CreateReport(c *gin.Context) {
	var req createReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	runID, err := h.registry.Start(req.CardIdentity, h.lang(req.Lang))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// CreateReportFromImage starts a run from a card photo, sent either as a
// multipart "image" file or as base64 in a JSON body
func (h *ReportHandler) CreateReportFromImage(c *gin.Context) {
	var imageBytes []byte
	lang := c.Query("lang")

	if file, err := c.FormFile("image"); err == nil {
		if file.Size > maxImageBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open uploaded file"})
			return
		}
		defer src.Close()

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(src); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
			return
		}
		imageBytes = buf.Bytes()
		if v := c.PostForm("lang"); v != "" {
			lang = v
		}
	} else {
		var req struct {
			Image string `json:"image"` // base64
			Lang  string `json:"lang"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "No image provided",
				"message": "Upload an image file or provide base64 encoded image in JSON body",
			})
			return
		}
		imageBytes, err = base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid base64 image data"})
			return
		}
		if req.Lang != "" {
			lang = req.Lang
		}
	}

	runID, err := h.registry.StartImage(imageBytes, h.lang(lang))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// GetReport returns the state of a run, with the report once done
func (h *ReportHandler) GetReport(c *gin.Context) {
	status, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetCandidates returns the products a run is waiting for a choice between
func (h *ReportHandler) GetCandidates(c *gin.Context) {
	choice, err := h.registry.Candidates(c.Param("id"))
	if err != nil {
		c.JSON(statusForRunError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, choice)
}

// SelectCandidate answers a pending choice. An empty url declines all candidates.
func (h *ReportHandler) SelectCandidate(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.registry.Select(c.Param("id"), strings.TrimSpace(req.URL)); err != nil {
		c.JSON(statusForRunError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// GetHistory lists stored reports, most recent first
func (h *ReportHandler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if h.store == nil {
		c.JSON(http.StatusOK, models.ReportHistoryResponse{Reports: []models.ReportDump{}})
		return
	}
	dumps, err := h.store.List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.ReportHistoryResponse{Reports: dumps, Count: len(dumps)})
}

// GetFetcherStatus returns request window occupancy
func (h *ReportHandler) GetFetcherStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"fetcher":     h.fetcher.Status(),
		"active_runs": h.registry.ActiveCount(),
	})
}

func statusForRunError(err error) int {
	switch {
	case errors.Is(err, services.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnknownCandidate):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNoPendingChoice), errors.Is(err, services.ErrTicketClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
