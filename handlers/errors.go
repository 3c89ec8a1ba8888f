package handlers

import (
	"net/http"

	"github.com/ragline/ragline/utils"
	"go.uber.org/zap"
)

// HandleValidationError writes a 400 with per-field details when the error is
// a validation error, and a generic 400 otherwise.
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if fields := utils.GetValidationFields(err); fields != nil {
		details := make(map[string]interface{}, len(fields))
		for field, message := range fields {
			details[field] = message
		}
		if writeErr := utils.WriteBadRequest(w, err.Error(), details); writeErr != nil {
			logger.Error("failed to write validation error response", zap.Error(writeErr))
		}
		return
	}

	if writeErr := utils.WriteBadRequest(w, err.Error(), nil); writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}
