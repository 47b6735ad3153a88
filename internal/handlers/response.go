package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/avc/storefront-orders/internal/domain"
	"go.uber.org/zap"
)

// Виды ошибок уровня HTTP, которых нет в domain
const (
	kindInvalidRequest    = "InvalidRequest"
	kindRateLimited       = "RateLimited"
	kindRequestInProgress = "RequestInProgress"
	kindInternal          = "InternalError"
)

// ErrorResponse: тело ответа с ошибкой
type ErrorResponse struct {
	Success   bool           `json:"success"`
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Retriable bool           `json:"retriable"`
}

var statusByKind = map[domain.ErrorKind]int{
	domain.KindMissingField:     http.StatusBadRequest,
	domain.KindInvalidOrderType: http.StatusBadRequest,
	domain.KindEmptyCart:        http.StatusBadRequest,
	domain.KindNoPaymentSession: http.StatusBadRequest,

	domain.KindTotalMismatch:         http.StatusUnprocessableEntity,
	domain.KindPaymentSplitInvalid:   http.StatusUnprocessableEntity,
	domain.KindAmountExceedsLimit:    http.StatusUnprocessableEntity,
	domain.KindDeliveryChargeInvalid: http.StatusUnprocessableEntity,
	domain.KindPriceMismatch:         http.StatusUnprocessableEntity,
	domain.KindOfferNotApplicable:    http.StatusUnprocessableEntity,
	domain.KindAmountMismatch:        http.StatusUnprocessableEntity,

	domain.KindUnauthorized:      http.StatusUnauthorized,
	domain.KindOwnershipMismatch: http.StatusForbidden,

	domain.KindAddressNotFound:       http.StatusNotFound,
	domain.KindProductNotInInventory: http.StatusNotFound,
	domain.KindUserNotFound:          http.StatusNotFound,
	domain.KindOrderNotFound:         http.StatusNotFound,
	domain.KindSessionNotFound:       http.StatusNotFound,

	domain.KindAlreadyReconciled: http.StatusConflict,
	domain.KindSizeUnavailable:   http.StatusConflict,
	domain.KindInsufficientStock: http.StatusConflict,

	domain.KindCheckoutSessionFailed: http.StatusBadGateway,
	domain.KindSessionLookupFailed:   http.StatusBadGateway,

	domain.KindOrderPersistenceFailed: http.StatusInternalServerError,
}

// StatusForKind возвращает HTTP статус для вида ошибки
func StatusForKind(kind domain.ErrorKind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func writeErrorBody(w http.ResponseWriter, status int, kind, message string, logger *zap.Logger) {
	writeJSON(w, status, ErrorResponse{Kind: kind, Message: message}, logger)
}

// writeError пишет ошибку сервиса. Внутренние ошибки логируются и отдаются без подробностей.
func writeError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	var rateLimitErr *domain.RateLimitError
	if errors.As(err, &rateLimitErr) {
		w.Header().Set("Retry-After", strconv.Itoa(int(rateLimitErr.RetryAfter.Seconds())))
	}

	var derr *domain.Error
	if !errors.As(err, &derr) {
		requestID, _ := r.Context().Value(RequestIDKey).(string)
		logger.Error("request failed",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeErrorBody(w, http.StatusInternalServerError, kindInternal, "internal server error", logger)
		return
	}

	status := StatusForKind(derr.Kind)
	if status >= http.StatusInternalServerError {
		requestID, _ := r.Context().Value(RequestIDKey).(string)
		logger.Error("request failed",
			zap.String("request_id", requestID),
			zap.String("kind", string(derr.Kind)),
			zap.Error(err),
		)
	}

	message := derr.Message
	if message == "" {
		message = derr.Error()
	}

	writeJSON(w, status, ErrorResponse{
		Kind:      string(derr.Kind),
		Message:   message,
		Details:   derr.Details,
		Retriable: domain.IsRetriable(err),
	}, logger)
}
