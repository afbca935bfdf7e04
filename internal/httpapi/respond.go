package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/park285/cheese-duel/internal/obslog"
	"github.com/park285/cheese-duel/pkg/chessdto"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		obslog.L().Warn("http_encode_failed", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, err error, data map[string]any) {
	de := chessdto.ErrorFor(err, data)
	status := statusFor(de.Code)
	if status >= http.StatusInternalServerError {
		obslog.L().Warn("http_error", zap.String("code", de.Code), zap.Error(err))
	}
	respondJSON(w, status, chessdto.ErrorResponse{Error: de})
}

func statusFor(code string) int {
	switch code {
	case chessdto.CodeTurnViolation, chessdto.CodeIllegalMove, chessdto.CodeSessionFull,
		chessdto.CodeSessionEnded, chessdto.CodeSessionNotActive, chessdto.CodeVersionConflict:
		return http.StatusConflict
	case chessdto.CodeSessionNotFound:
		return http.StatusNotFound
	case chessdto.CodeNotParticipant:
		return http.StatusForbidden
	case chessdto.CodeInvalidArgs, chessdto.CodeMalformedProposal:
		return http.StatusBadRequest
	case chessdto.CodeSyncFailure, chessdto.CodeProposalExhausted, chessdto.CodeAgentUnavailable,
		chessdto.CodeAutomationDisabled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
