package emails

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	custom_err "github.com/customeros/mailpulse/api/errors"
	"github.com/customeros/mailpulse/dto"
	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/tracing"
)

// List returns classified emails newest first, optionally filtered by
// label and sentiment.
func (h *EmailsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailsHandler.List")
		defer span.Finish()
		tracing.TagComponentRest(span)

		filter, errs := parseListFilter(c)
		if errs.HasErrors() {
			tracing.TraceErr(span, errs)
			custom_err.AbortValidation(c, errs)
			return
		}

		records, err := h.repo.ListClassified(ctx, filter)
		if err != nil {
			tracing.TraceErr(span, err)
			h.log.Errorf("Failed to list emails: %v", err)
			custom_err.Abort(c, http.StatusInternalServerError, custom_err.MsgInternal)
			return
		}

		response := make([]EmailResponse, 0, len(records))
		for _, rec := range records {
			response = append(response, toEmailResponse(rec))
		}
		c.JSON(http.StatusOK, response)
	}
}

func parseListFilter(c *gin.Context) (dto.MailRecordFilter, *custom_err.MultiErrors) {
	errs := custom_err.NewMultiErrors()
	filter := dto.MailRecordFilter{
		Label: strings.TrimSpace(c.Query("label")),
	}

	if raw := strings.TrimSpace(c.Query("sentiment")); raw != "" {
		sentiment, ok := enum.ParseSentiment(raw)
		if !ok {
			errs.Add("sentiment", "sentiment must be positive, negative or neutral", errors.Errorf("unknown sentiment %q", raw))
		}
		filter.Sentiment = sentiment.String()
	}

	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxListLimit {
			errs.Add("limit", "limit must be between 1 and "+strconv.Itoa(maxListLimit), err)
		}
		filter.Limit = limit
	}

	return filter, errs
}
