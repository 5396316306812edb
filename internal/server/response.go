package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"taxchat/internal/app"
)

// Every response is wrapped in one of two envelopes:
// {"success":true,"data":...} or {"success":false,"error":...,"code":...}.

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// statusByCode maps error codes to HTTP statuses: 400 for validation and
// missing fields, 404 for not-found, 409 for uniqueness conflicts.
// Unlisted codes are 500.
var statusByCode = map[app.Code]int{
	app.CodeInvalidName:           http.StatusBadRequest,
	app.CodeMissingPhone:          http.StatusBadRequest,
	app.CodeInvalidPhoneFormat:    http.StatusBadRequest,
	app.CodeInvalidEmailFormat:    http.StatusBadRequest,
	app.CodeInvalidMessageRole:    http.StatusBadRequest,
	app.CodeInvalidMessageContent: http.StatusBadRequest,
	app.CodeValidation:            http.StatusBadRequest,
	app.CodeInvalidJSON:           http.StatusBadRequest,
	app.CodeMissingID:             http.StatusBadRequest,
	app.CodeUserNotFound:          http.StatusNotFound,
	app.CodeConversationNotFound:  http.StatusNotFound,
	app.CodeFileNotFound:          http.StatusNotFound,
	app.CodePhoneExists:           http.StatusConflict,
	app.CodeEmailExists:           http.StatusConflict,
}

func statusForCode(code app.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, successEnvelope{Success: true, Data: data})
}

func writeCode(w http.ResponseWriter, code app.Code, message string) {
	writeJSON(w, statusForCode(code), errorEnvelope{Success: false, Error: message, Code: string(code)})
}

// writeAppError renders a tagged domain error with its mapped status.
// Anything else is an infrastructure failure: logged, returned as a generic
// internal error without leaking detail.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	if domainErr, ok := app.AsError(err); ok {
		writeCode(w, domainErr.Code, domainErr.Message)
		return
	}
	slog.Error("request failed", "path", r.URL.Path, "method", r.Method, "err", err)
	writeCode(w, app.CodeInternal, "Internal server error")
}
