package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/mood-check/internal/auth"
	"github.com/example/mood-check/internal/logging"
	"github.com/example/mood-check/internal/repository"
	"github.com/example/mood-check/internal/usecase"
)

// operationKey holds the failing operation for RequestLogger.
const operationKey = "operation"

// MaxBodySize bounds request bodies; base64 inflates images by a third.
const MaxBodySize = 10 << 20

// InferenceService is the subset of the use case the HTTP layer depends on.
type InferenceService interface {
	PredictMood(ctx context.Context, userID, payload string) (*usecase.MoodPrediction, error)
	AssessText(ctx context.Context, userID, text string) (*usecase.CrisisAssessment, error)
	GetRecord(ctx context.Context, userID, requestID string) (*repository.EmotionRecord, error)
	GetMoodSummary(ctx context.Context, userID string, days int) (*usecase.MoodSummary, error)
	ListMoodEntries(ctx context.Context, userID string, limit int) ([]repository.EmotionRecord, error)
}

type predictMoodRequest struct {
	Image string `json:"image"`
}

type predictMentalStateRequest struct {
	Text string `json:"text"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. optionalAuth guards the
// prediction routes, requiredAuth the per-user history routes.
func RegisterRoutes(router *gin.Engine, svc InferenceService, optionalAuth, requiredAuth gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/predictMood", limitBody, optionalAuth, func(c *gin.Context) {
		var req predictMoodRequest
		if !bindJSON(c, &req) {
			return
		}
		if strings.TrimSpace(req.Image) == "" {
			writeError(c, usecase.ErrValidation, "Missing 'image' field")
			return
		}

		userID, _ := auth.GetUserID(c.Request.Context())
		prediction, err := svc.PredictMood(c.Request.Context(), userID, req.Image)
		if err != nil {
			writeError(c, err, "")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": prediction.RequestID,
			"emotion":    prediction.Result.Label,
			"confidence": prediction.Result.Confidence,
		})
	})

	router.POST("/predictMentalState", limitBody, optionalAuth, func(c *gin.Context) {
		var req predictMentalStateRequest
		if !bindJSON(c, &req) {
			return
		}

		userID, _ := auth.GetUserID(c.Request.Context())
		assessment, err := svc.AssessText(c.Request.Context(), userID, req.Text)
		if err != nil {
			writeError(c, err, "")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"scores":   assessment.Scores,
			"isCrisis": assessment.IsCrisis,
		})
	})

	router.GET("/records/:id", requiredAuth, func(c *gin.Context) {
		requestID := c.Param("id")
		userID, _ := auth.GetUserID(c.Request.Context())

		record, err := svc.GetRecord(c.Request.Context(), userID, requestID)
		if err != nil {
			writeError(c, err, "")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": record.RequestID,
			"emotion":    record.Label,
			"confidence": record.Confidence,
			"created_at": record.CreatedAt,
		})
	})

	router.GET("/moods/summary", requiredAuth, func(c *gin.Context) {
		days, ok := queryInt(c, "days", usecase.DefaultSummaryDays)
		if !ok {
			return
		}
		userID, _ := auth.GetUserID(c.Request.Context())

		summary, err := svc.GetMoodSummary(c.Request.Context(), userID, days)
		if err != nil {
			writeError(c, err, "")
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	router.GET("/moods/entries", requiredAuth, func(c *gin.Context) {
		limit, ok := queryInt(c, "limit", usecase.DefaultEntriesLimit)
		if !ok {
			return
		}
		userID, _ := auth.GetUserID(c.Request.Context())

		records, err := svc.ListMoodEntries(c.Request.Context(), userID, limit)
		if err != nil {
			writeError(c, err, "")
			return
		}

		entries := make([]gin.H, 0, len(records))
		for _, record := range records {
			entries = append(entries, gin.H{
				"request_id": record.RequestID,
				"emotion":    record.Label,
				"confidence": record.Confidence,
				"created_at": record.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, entries)
	})
}

// queryInt reads a non-negative integer query parameter. On a malformed value it
// writes a validation error and returns false.
func queryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw, present := c.GetQuery(key)
	if !present || strings.TrimSpace(raw) == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		writeError(c, usecase.ErrValidation, fmt.Sprintf("'%s' must be a non-negative integer", key))
		return 0, false
	}
	return n, true
}

func limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodySize)
	c.Next()
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":    "request body too large",
			"category": usecase.CategoryValidation,
		})
		return false
	}
	writeError(c, usecase.ErrValidation, "request body must be JSON")
	return false
}

var categoryMessages = map[usecase.Category]string{
	usecase.CategoryValidation:            "invalid request",
	usecase.CategoryNoSubjectDetected:     "No face detected",
	usecase.CategoryClassifierUnavailable: "model temporarily unavailable",
	usecase.CategoryPersistence:           "storage temporarily unavailable",
	usecase.CategoryNotFound:              "result not found",
	usecase.CategoryInternal:              "internal server error",
}

// writeError reports err by category only. Internal messages never reach the client.
func writeError(c *gin.Context, err error, message string) {
	category := usecase.CategoryOf(err)
	if message == "" {
		message = categoryMessages[category]
		if category == usecase.CategoryValidation {
			message = validationMessage(err)
		}
	}
	if op := logging.OperationOf(err); op != "" {
		c.Set(operationKey, op)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(category), gin.H{"error": message, "category": category})
}

func statusFor(category usecase.Category) int {
	switch category {
	case usecase.CategoryValidation, usecase.CategoryNoSubjectDetected:
		return http.StatusBadRequest
	case usecase.CategoryNotFound:
		return http.StatusNotFound
	case usecase.CategoryClassifierUnavailable, usecase.CategoryPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, usecase.ErrTextRequired):
		return "Missing text"
	case errors.Is(err, usecase.ErrImageTooLarge):
		return "image is too large"
	default:
		return categoryMessages[usecase.CategoryValidation]
	}
}
