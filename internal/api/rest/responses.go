package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
)

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

// Page wraps a paged collection.
type Page struct {
	Items    interface{} `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int         `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

// writeError maps domain errors onto the envelope. Internal details never
// reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.GetStatusCode(err)
	resp := Response{Success: false}

	if appErr, ok := err.(*errors.AppError); ok {
		resp.Message = appErr.Message
		if appErr.Code != "" {
			resp.Errors = []string{appErr.Code}
		}
		if appErr.Type == errors.ErrorTypeInternal {
			resp.Message = "internal server error"
			resp.Errors = nil
		}
		if minRequired, ok := appErr.Details["min_required"]; ok {
			resp.Data = map[string]interface{}{"min_required": minRequired}
		}
	} else {
		status = http.StatusInternalServerError
		resp.Message = "internal server error"
	}

	if status >= 500 {
		slog.Default().Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, resp)
}
