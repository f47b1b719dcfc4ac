package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"fintrack/internal/shared/apperr"
	"fintrack/internal/shared/middleware"
)

// MessageResponse is the body of every error and of plain acknowledgements.
type MessageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// responder writes JSON bodies and maps application errors to statuses.
type responder struct {
	logger        *zap.Logger
	exposeDetails bool
}

func (rs responder) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		rs.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (rs responder) writeMessage(w http.ResponseWriter, status int, message string) {
	rs.writeJSON(w, status, MessageResponse{Message: message})
}

// writeError renders err as {"message": ...}. Backend failures are logged and
// their cause is only included when detail exposure is switched on.
func (rs responder) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	resp := MessageResponse{Message: apperr.Message(err)}

	switch apperr.KindOf(err) {
	case apperr.KindDependency, apperr.KindAccess:
		rs.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", apperr.KindOf(err).String()),
			zap.Error(err),
		)
		if rs.exposeDetails {
			resp.Error = err.Error()
		}
	}

	rs.writeJSON(w, status, resp)
}

func (rs responder) methodNotAllowed(w http.ResponseWriter) {
	rs.writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// resolveOwner prefers the gateway-injected identity over any caller-supplied value.
func resolveOwner(r *http.Request, candidates ...string) string {
	if owner, ok := middleware.OwnerFromContext(r.Context()); ok {
		return owner
	}
	return firstNonEmpty(candidates...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
