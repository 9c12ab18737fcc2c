package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/searchsaver/internal/middleware"
	"github.com/hitoshi/searchsaver/internal/model"
	"github.com/hitoshi/searchsaver/internal/search"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse は統一フォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	apiErr, status := toAPIError(err)
	writeAPIErrorResponse(w, status, apiErr)
}

// toAPIError はサービス層のエラーをAPIErrorとHTTPステータスに変換する。
// 既知のエラー以外は内部エラーとして扱い、詳細はログのみに記録する。
func toAPIError(err error) (*model.APIError, int) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr, mapAPIErrorToHTTPStatus(apiErr)
	}

	var cfgErr *search.ConfigError
	if errors.As(err, &cfgErr) {
		apiErr := model.NewSearchConfigError(cfgErr.Message)
		return apiErr, mapAPIErrorToHTTPStatus(apiErr)
	}

	var reqErr *search.RequestError
	if errors.As(err, &reqErr) {
		apiErr := model.NewSearchFailedError(reqErr.Message)
		return apiErr, mapAPIErrorToHTTPStatus(apiErr)
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	return model.NewInternalError(), http.StatusInternalServerError
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest, model.ErrCodeValidation, model.ErrCodeInvalidEngine, model.ErrCodeInvalidLinkURL:
		return http.StatusBadRequest
	case model.ErrCodeLinkNotFound:
		return http.StatusNotFound
	case model.ErrCodeSearchConfig, model.ErrCodeNoEngineConfigured:
		return http.StatusServiceUnavailable
	case model.ErrCodeSearchFailed:
		return http.StatusBadGateway
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
