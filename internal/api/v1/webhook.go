package v1

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/crmsync/internal/api/common"
	"github.com/stacklok/crmsync/internal/webhook"
)

// maxWebhookBodySize bounds the notification payload read into memory
const maxWebhookBodySize = 1 << 20

// WebhookRouter creates a router for inbound change notifications.
// Requests are authenticated by their signature, not by the admin middleware.
func WebhookRouter(ingestor webhook.Ingestor) http.Handler {
	r := chi.NewRouter()
	r.Post("/{system}", receiveWebhook(ingestor))
	return r
}

// receiveWebhook handles POST /sync/webhook/{system}
func receiveWebhook(ingestor webhook.Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		system, err := common.SystemParam(r)
		if err != nil {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				common.WriteErrorResponse(w, "Payload too large", http.StatusRequestEntityTooLarge)
				return
			}
			common.WriteErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		result, err := ingestor.Ingest(r.Context(), system, r.Header, body)
		if err != nil {
			writeWebhookError(w, err)
			return
		}

		common.WriteJSONResponse(w, result, http.StatusAccepted)
	}
}

func writeWebhookError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, webhook.ErrUnknownSystem), errors.Is(err, webhook.ErrUnknownTenant):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, webhook.ErrUnauthenticated):
		common.WriteErrorResponse(w, "Invalid signature", http.StatusUnauthorized)
	case errors.Is(err, webhook.ErrMalformed):
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("Failed to ingest webhook", "error", err)
		common.WriteErrorResponse(w, "Internal server error", http.StatusInternalServerError)
	}
}
