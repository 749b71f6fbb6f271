package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the kind of a pipeline error
type ErrorType string

const (
	// ErrorTypeMissingIdentifier is a URL without a trailing numeric segment
	ErrorTypeMissingIdentifier ErrorType = "missing_identifier"
	// ErrorTypeMalformedURL is an empty or unparseable URL
	ErrorTypeMalformedURL ErrorType = "malformed_url"
	// ErrorTypePriceParse is price text that is not coercible to an integer
	ErrorTypePriceParse ErrorType = "price_parse"
	// ErrorTypeStoreWrite is a failed catalog write
	ErrorTypeStoreWrite ErrorType = "store_write"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// PipelineError is a per-record error raised while normalizing or storing a listing
type PipelineError struct {
	Type    ErrorType
	Subject string
	Message string
	Err     error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Subject, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Subject, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// New creates a new PipelineError
func New(errType ErrorType, subject, message string, err error) *PipelineError {
	return &PipelineError{
		Type:    errType,
		Subject: subject,
		Message: message,
		Err:     err,
	}
}

// NewMissingIdentifier creates an error for a URL without a numeric identifier
func NewMissingIdentifier(url string) *PipelineError {
	return New(ErrorTypeMissingIdentifier, url, "no trailing numeric path segment", nil)
}

// NewMalformedURL creates an error for an empty or unparseable URL
func NewMalformedURL(url string, err error) *PipelineError {
	return New(ErrorTypeMalformedURL, url, "empty or unparseable url", err)
}

// NewPriceParse creates an error for unusable price text
func NewPriceParse(priceText string, err error) *PipelineError {
	return New(ErrorTypePriceParse, priceText, "price is not an integer", err)
}

// NewStoreWrite creates an error for a failed catalog write
func NewStoreWrite(identifier int64, err error) *PipelineError {
	return New(ErrorTypeStoreWrite, fmt.Sprintf("%d", identifier), "catalog write failed", err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *PipelineError {
	return New(ErrorTypeConfiguration, "config", message, err)
}

// IsType reports whether any error in err's tree is a PipelineError of the given type.
// MalformedURL counts as MissingIdentifier since both mean the record has no key.
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if IsType(e, errType) {
				return true
			}
		}
		return false
	}
	var pe *PipelineError
	if !stderrors.As(err, &pe) {
		return false
	}
	if pe.Type == errType {
		return true
	}
	if errType == ErrorTypeMissingIdentifier && pe.Type == ErrorTypeMalformedURL {
		return true
	}
	return IsType(pe.Err, errType)
}
