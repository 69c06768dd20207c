package tls

import (
	"fmt"
	"strings"
)

// TLSErrorType represents different categories of TLS errors
type TLSErrorType string

const (
	// Option errors
	ErrorTypeOptionInvalid TLSErrorType = "option_invalid"
	ErrorTypeOptionMissing TLSErrorType = "option_missing"

	// Certificate errors
	ErrorTypeCertificateLoad TLSErrorType = "certificate_load"

	// File system errors
	ErrorTypeFileAccess TLSErrorType = "file_access"

	// Vocabulary errors
	ErrorTypeCipherSuite TLSErrorType = "cipher_suite"
	ErrorTypeVersion     TLSErrorType = "version"
)

// TLSError represents a structured TLS error with context
type TLSError struct {
	Type        TLSErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	Suggestions []string
}

// Error implements the error interface
func (e *TLSError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", string(e.Type)))
	parts = append(parts, e.Message)

	if len(e.Context) > 0 {
		var contextParts []string
		for key, value := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", key, value))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

// Unwrap returns the underlying error for error unwrapping
func (e *TLSError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *TLSError) WithContext(key string, value interface{}) *TLSError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for resolving the error
func (e *TLSError) WithSuggestion(suggestion string) *TLSError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// NewTLSError creates a new TLS error with the specified type and message
func NewTLSError(errorType TLSErrorType, message string) *TLSError {
	return &TLSError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewTLSErrorWithCause creates a new TLS error with an underlying cause
func NewTLSErrorWithCause(errorType TLSErrorType, message string, cause error) *TLSError {
	return &TLSError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewOptionInvalidError reports an option whose value is outside the engine vocabulary.
func NewOptionInvalidError(key string, value interface{}, reason string) *TLSError {
	return NewTLSError(ErrorTypeOptionInvalid, fmt.Sprintf("invalid value for option '%s'", key)).
		WithContext("option", key).
		WithContext("value", value).
		WithContext("reason", reason).
		WithSuggestion(fmt.Sprintf("Check the '%s' option in the resolved option set", key))
}

// NewOptionMissingError reports a well-known option required by another option.
func NewOptionMissingError(key, requiredBy string) *TLSError {
	return NewTLSError(ErrorTypeOptionMissing, fmt.Sprintf("option '%s' is required by '%s'", key, requiredBy)).
		WithContext("option", key).
		WithContext("required_by", requiredBy).
		WithSuggestion(fmt.Sprintf("Provide '%s' alongside '%s'", key, requiredBy))
}

// NewCertificateLoadError reports a certificate/key pair that failed to parse.
func NewCertificateLoadError(certFile, keyFile string, cause error) *TLSError {
	return NewTLSErrorWithCause(ErrorTypeCertificateLoad, "failed to load certificate", cause).
		WithContext("cert_file", certFile).
		WithContext("key_file", keyFile).
		WithSuggestion("Verify that the certificate and key files exist and are readable").
		WithSuggestion("Check that the certificate and key files are in PEM format").
		WithSuggestion("Ensure the certificate and private key match")
}

// NewFileAccessError reports an unreadable option file.
func NewFileAccessError(path string, cause error) *TLSError {
	return NewTLSErrorWithCause(ErrorTypeFileAccess, fmt.Sprintf("cannot read %s", path), cause).
		WithContext("file_path", path).
		WithSuggestion("Verify the file path is correct").
		WithSuggestion("Check file permissions (should be readable by the process)")
}

// IsCertificateError reports whether err is a certificate-class TLSError.
func IsCertificateError(err error) bool {
	if tlsErr, ok := err.(*TLSError); ok {
		return tlsErr.Type == ErrorTypeCertificateLoad
	}
	return false
}

// IsOptionError reports whether err is an option-vocabulary TLSError.
func IsOptionError(err error) bool {
	if tlsErr, ok := err.(*TLSError); ok {
		switch tlsErr.Type {
		case ErrorTypeOptionInvalid, ErrorTypeOptionMissing, ErrorTypeCipherSuite, ErrorTypeVersion:
			return true
		}
	}
	return false
}
