package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"portfolio-tracker/internal/portfolio"
	"portfolio-tracker/internal/quotes"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// statusClientClosedRequest is the nginx convention for a request the
// client abandoned.
const statusClientClosedRequest = 499

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSON encodes data before writing the status, so a value JSON cannot
// represent becomes a 500 instead of a truncated body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		s.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// errorStatus maps service and quote errors onto HTTP status codes.
func errorStatus(err error) int {
	var verr *portfolio.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, portfolio.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, portfolio.ErrNotFound), errors.Is(err, quotes.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, portfolio.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, portfolio.ErrOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, quotes.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, quotes.ErrSourceUnavailable), errors.Is(err, quotes.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, quotes.ErrInvalidQuote):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes err as a JSON error. Internal errors are logged and
// their details withheld from the client.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	resp := errorResponse{Error: err.Error(), RequestID: middleware.GetReqID(r.Context())}

	var verr *portfolio.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", resp.RequestID),
			zap.Error(err),
		)
		resp.Error = "internal server error"
	} else if status >= http.StatusInternalServerError {
		s.logger.Warn("Upstream failure", zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.writeJSON(w, status, resp)
}

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &portfolio.ValidationError{Field: "body", Message: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return nil
}
