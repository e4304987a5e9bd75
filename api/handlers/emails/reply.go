package emails

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	custom_err "github.com/customeros/mailpulse/api/errors"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/tracing"
	"github.com/customeros/mailpulse/internal/utils"
)

type ReplyEmailRequest struct {
	Content string `json:"content"`
}

// Reply sends the request content to the original sender and marks the
// record as answered.
func (h *EmailsHandler) Reply() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailsHandler.Reply")
		defer span.Finish()
		tracing.TagComponentRest(span)

		id := c.Param("id")
		tracing.TagEntity(span, id)
		replyLog := h.log.With(zap.String("recordId", id))

		var request ReplyEmailRequest
		errs := custom_err.NewMultiErrors()
		if err := c.ShouldBindJSON(&request); err != nil {
			errs.Add("request", "please provide a valid request payload", err)
		} else if strings.TrimSpace(request.Content) == "" {
			errs.Add("content", "please provide the reply content", errors.New("content is empty"))
		}
		if errs.HasErrors() {
			tracing.TraceErr(span, errs)
			custom_err.AbortValidation(c, errs)
			return
		}

		rec, err := h.repo.GetByID(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			replyLog.Errorf("Failed to load email: %v", err)
			custom_err.Abort(c, http.StatusInternalServerError, custom_err.MsgReplyFailed)
			return
		}
		if rec == nil {
			custom_err.Abort(c, http.StatusNotFound, custom_err.MsgEmailNotFound)
			return
		}

		to := rec.SenderAddress
		if to == "" {
			to = rec.Sender
		}

		replyID, err := h.mailer.Send(ctx, &interfaces.OutboundMessage{
			To:        to,
			Subject:   replySubject(rec.Subject),
			Body:      request.Content,
			InReplyTo: rec.MessageID,
		})
		if err != nil {
			tracing.TraceErr(span, err)
			replyLog.Errorf("Failed to send reply to %s: %v", to, err)
			custom_err.Abort(c, http.StatusInternalServerError, custom_err.MsgReplyFailed)
			return
		}

		if err := h.repo.MarkReplied(ctx, rec.ID, replyID); err != nil {
			tracing.TraceErr(span, err)
			replyLog.Errorf("Reply %s sent but record was not updated: %v", replyID, err)
			custom_err.Abort(c, http.StatusInternalServerError, custom_err.MsgReplyFailed)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "Reply sent successfully",
			"messageId": replyID,
		})
	}
}

func replySubject(subject string) string {
	return "Re: " + utils.NormalizeEmailSubject(subject)
}
