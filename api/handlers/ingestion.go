package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	custom_err "github.com/customeros/mailpulse/api/errors"
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

type IngestionHandler struct {
	ingestion interfaces.Ingestion
	repo      interfaces.MailRecordRepository
	log       logger.Logger
}

func NewIngestionHandler(ingestion interfaces.Ingestion, repo interfaces.MailRecordRepository, log logger.Logger) *IngestionHandler {
	return &IngestionHandler{
		ingestion: ingestion,
		repo:      repo,
		log:       log,
	}
}

type CycleSummary struct {
	CycleID    string `json:"cycleId"`
	Found      int    `json:"found"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
}

func summarize(result dto.CycleResult) CycleSummary {
	return CycleSummary{
		CycleID:    result.CycleID,
		Found:      result.Found,
		Inserted:   result.Inserted,
		Duplicates: result.Duplicates,
		Failed:     result.Failed,
	}
}

type StatusResponse struct {
	Connected     bool                 `json:"connected"`
	State         enum.ConnectionState `json:"state"`
	LastConnected *time.Time           `json:"lastConnected,omitempty"`
	LastCheck     *time.Time           `json:"lastCheck,omitempty"`
	LastCycle     *CycleSummary        `json:"lastCycle,omitempty"`
	Reconnects    int                  `json:"reconnects"`
	Counts        *dto.RecordCounts    `json:"counts,omitempty"`
}

// CheckEmails runs one fetch cycle synchronously.
func (h *IngestionHandler) CheckEmails() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "IngestionHandler.CheckEmails")
		defer span.Finish()
		tracing.TagComponentRest(span)

		result := h.ingestion.RunCycle(ctx)
		tracing.TagCycle(span, result.CycleID)

		switch {
		case result.Error == dto.CycleErrorNotConnected:
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"message": custom_err.MsgNotConnected,
				"result":  summarize(result),
			})
		case !result.Succeeded():
			h.log.Warnf("Manual email check %s failed: %s", result.CycleID, result.Error)
			c.JSON(http.StatusBadGateway, gin.H{
				"success": false,
				"message": "Email check failed",
				"result":  summarize(result),
			})
		default:
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"message": "Email check completed",
				"result":  summarize(result),
			})
		}
	}
}

// Status reports the connection state and store counts. Counts are left
// out when the store is unreachable.
func (h *IngestionHandler) Status() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "IngestionHandler.Status")
		defer span.Finish()
		tracing.TagComponentRest(span)

		status := h.ingestion.Status()
		response := StatusResponse{
			Connected:     status.Connected,
			State:         status.State,
			LastConnected: status.LastConnected,
			LastCheck:     status.LastCycleAt,
			Reconnects:    status.Reconnects,
		}
		if status.LastCycle != nil {
			summary := summarize(*status.LastCycle)
			response.LastCycle = &summary
		}

		counts, err := h.repo.CountByState(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			h.log.Errorf("Failed to count records: %v", err)
		} else {
			response.Counts = counts
		}

		c.JSON(http.StatusOK, response)
	}
}
