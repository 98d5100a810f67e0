package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrSessionExpired = fmt.Errorf("%w: session", ErrNotFound)
	ErrUnknownColumn  = fmt.Errorf("%w: column", ErrNotFound)
	ErrUnknownOutput  = fmt.Errorf("%w: output", ErrNotFound)

	// Selection errors
	ErrEmptyResponse   = errors.New("no response variable selected")
	ErrNoTerms         = errors.New("no explanatory variables selected")
	ErrDuplicateTerm   = errors.New("explanatory variable selected twice")
	ErrResponseInTerms = errors.New("response variable also selected as explanatory")

	// Fit errors
	ErrNotBinary        = errors.New("response is not binary")
	ErrSingularDesign   = errors.New("design matrix is rank deficient")
	ErrNotConverged     = errors.New("fit did not converge")
	ErrNonFinite        = errors.New("non-finite estimate")
	ErrInsufficientData = errors.New("insufficient observations for the number of parameters")

	// Load errors
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrEmptyDataset      = errors.New("dataset has no data rows")
	ErrRaggedRow         = errors.New("row length does not match header")
)

// NewUnknownColumnError names the column that is missing from the schema
func NewUnknownColumnError(name string) error {
	return fmt.Errorf("%w %q", ErrUnknownColumn, name)
}

// IsNotFoundError reports whether err is any not-found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsSelectionError reports whether err stems from an invalid selection
func IsSelectionError(err error) bool {
	return errors.Is(err, ErrEmptyResponse) ||
		errors.Is(err, ErrNoTerms) ||
		errors.Is(err, ErrDuplicateTerm) ||
		errors.Is(err, ErrResponseInTerms) ||
		errors.Is(err, ErrUnknownColumn)
}

// IsFitError reports whether err stems from the estimator
func IsFitError(err error) bool {
	return errors.Is(err, ErrNotBinary) ||
		errors.Is(err, ErrSingularDesign) ||
		errors.Is(err, ErrNotConverged) ||
		errors.Is(err, ErrNonFinite) ||
		errors.Is(err, ErrInsufficientData)
}
