package app

import "errors"

// Code is a stable machine-readable failure class. It travels with the error
// from the operation that raised it to the HTTP layer, which maps it to a
// status; no layer ever inspects error message text.
type Code string

const (
	CodeInvalidName           Code = "INVALID_NAME"
	CodeMissingPhone          Code = "MISSING_PHONE"
	CodeInvalidPhoneFormat    Code = "INVALID_PHONE_FORMAT"
	CodeInvalidEmailFormat    Code = "INVALID_EMAIL_FORMAT"
	CodePhoneExists           Code = "PHONE_EXISTS"
	CodeEmailExists           Code = "EMAIL_EXISTS"
	CodeMissingID             Code = "MISSING_ID"
	CodeUserNotFound          Code = "USER_NOT_FOUND"
	CodeConversationNotFound  Code = "CONVERSATION_NOT_FOUND"
	CodeFileNotFound          Code = "FILE_NOT_FOUND"
	CodeInvalidMessageRole    Code = "INVALID_MESSAGE_ROLE"
	CodeInvalidMessageContent Code = "INVALID_MESSAGE_CONTENT"
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeInvalidJSON           Code = "INVALID_JSON"
	CodeInternal              Code = "INTERNAL_ERROR"
)

// Error is a domain failure carrying a Code.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError builds a tagged domain error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsError unwraps err to a tagged domain error, if it is one.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
