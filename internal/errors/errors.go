package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context, keeping the code of an
// AppError found anywhere in the chain.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    GetCode(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsAppError checks if an error is, or wraps, an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the code of the outermost AppError in the chain.
// Errors without one are reported as INTERNAL_ERROR.
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

// HasCode reports whether err carries the given code
func HasCode(err error, code string) bool {
	return err != nil && GetCode(err) == code
}

// UserMessage returns the text shown in place of an output that failed to
// render. Selection errors are shown verbatim, everything else is prefixed
// with its category.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return "Internal error: " + err.Error()
	}
	switch appErr.Code {
	case CodeSelectionError:
		// the innermost selection message is the one worded for the user
		msg := appErr.Message
		for cause := appErr.Cause; cause != nil; cause = stderrors.Unwrap(cause) {
			if inner, ok := cause.(*AppError); ok && inner.Code == CodeSelectionError {
				msg = inner.Message
			}
		}
		return msg
	case CodeModelFitError:
		return "Model could not be estimated: " + err.Error()
	case CodeDataLoadError:
		return "Dataset could not be loaded: " + err.Error()
	case CodeCodeGeneration:
		return "Code snippet could not be generated: " + err.Error()
	case CodeInternalError:
		return "Internal error: " + err.Error()
	default:
		return err.Error()
	}
}

// Predefined error codes
const (
	CodeConfigInvalid = "CONFIG_INVALID"
	CodeDatabaseError = "DATABASE_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeInternalError = "INTERNAL_ERROR"
	CodeInvalidInput  = "INVALID_INPUT"

	CodeSelectionError = "SELECTION_ERROR"
	CodeModelFitError  = "MODEL_FIT_ERROR"
	CodeDataLoadError  = "DATA_LOAD_ERROR"
	CodeCodeGeneration = "CODE_GENERATION_ERROR"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

func NotFound(resource string, cause error) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", resource), Cause: cause}
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// SelectionError reports a missing or invalid variable choice
func SelectionError(message string, cause error) *AppError {
	return &AppError{Code: CodeSelectionError, Message: message, Cause: cause}
}

// ModelFitError reports a failure of the GLM fitter
func ModelFitError(message string, cause error) *AppError {
	return &AppError{Code: CodeModelFitError, Message: message, Cause: cause}
}

// DataLoadError reports an unreadable or malformed dataset
func DataLoadError(message string, cause error) *AppError {
	return &AppError{Code: CodeDataLoadError, Message: message, Cause: cause}
}

// CodeGenerationError reports a snippet template failure
func CodeGenerationError(message string, cause error) *AppError {
	return &AppError{Code: CodeCodeGeneration, Message: message, Cause: cause}
}
