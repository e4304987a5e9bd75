package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	custom_err "github.com/customeros/mailpulse/api/errors"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/logger"
)

type AnalysisHandler struct {
	trigger interfaces.AnalysisTrigger
	log     logger.Logger
}

func NewAnalysisHandler(trigger interfaces.AnalysisTrigger, log logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{trigger: trigger, log: log}
}

// Trigger queues an analysis pass without waiting for it.
func (h *AnalysisHandler) Trigger() gin.HandlerFunc {
	return func(c *gin.Context) {
		message := "Analysis started"
		if !h.trigger.TriggerPass() {
			message = custom_err.MsgAnalysisPending
		}
		h.log.Info("Manual analysis triggered")
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": message,
		})
	}
}
