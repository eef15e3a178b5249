package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/reviewrelay/internal/api/response"
	"github.com/kiranshivaraju/reviewrelay/pkg/models"
)

const maxJSONBodyBytes = 1 << 20

// Answerer defines the interface the ask handlers depend on. Implementations
// never fail: upstream errors come back as degraded answers.
type Answerer interface {
	AskText(ctx context.Context, question string) models.StructuredAnswer
	AskImage(ctx context.Context, question string, image []byte, mime string) models.StructuredAnswer
}

// NewAskHandler returns an http.HandlerFunc for POST /ask_ai.
func NewAskHandler(svc Answerer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "text is required")
			return
		}

		response.JSON(w, svc.AskText(r.Context(), req.Text))
	}
}
