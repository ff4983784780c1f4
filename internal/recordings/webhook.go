package recordings

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomkit/console-backend/pkg/response"
)

// SignatureHeader carries the HMAC of the webhook body.
const SignatureHeader = "X-Webhook-Signature"

// WebhookHandler receives media-server notifications. The route is mounted
// outside the authenticated API group; the body HMAC is the only credential.
type WebhookHandler struct {
	ingestor *Ingestor
	logger   *zap.Logger
}

func NewWebhookHandler(ingestor *Ingestor, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{ingestor: ingestor, logger: logger}
}

// Receive handles POST /webhooks/media. A non-2xx response makes the media
// server redeliver, so only signature failures and processing errors reject.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}

	err = h.ingestor.Handle(c.Request.Context(), body, c.GetHeader(SignatureHeader))
	switch {
	case err == nil:
		response.OK(c, gin.H{"received": true})
	case errors.Is(err, ErrInvalidSignature):
		response.Unauthorized(c, "invalid webhook signature")
	case errors.Is(err, ErrLockTimeout), errors.Is(err, ErrStorageUnavailable):
		response.ServiceUnavailable(c, "temporarily unable to process event")
	default:
		h.logger.Error("webhook processing failed", zap.Error(err))
		response.Internal(c, "event processing failed")
	}
}
