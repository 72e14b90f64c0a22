package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error types for Kafka operations
var (
	// ErrProducerClosed indicates the producer has been closed
	ErrProducerClosed = errors.New("kafka producer is closed")

	// ErrConsumerClosed indicates the consumer has been closed
	ErrConsumerClosed = errors.New("kafka consumer is closed")

	// ErrInvalidMessage indicates the message is invalid
	ErrInvalidMessage = errors.New("invalid message")

	// ErrEmptyKey indicates the message key is empty
	ErrEmptyKey = errors.New("message key cannot be empty")

	// ErrEmptyValue indicates the message value is empty
	ErrEmptyValue = errors.New("message value cannot be empty")

)

// ErrorType represents the type of error
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown error type
	ErrorTypeUnknown ErrorType = iota

	// ErrorTypeTransient represents a transient error (network issues, timeouts)
	ErrorTypeTransient

	// ErrorTypePermanent represents a permanent error (schema mismatch, invalid data)
	ErrorTypePermanent

	// ErrorTypeBusiness represents a business logic error
	ErrorTypeBusiness
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeBusiness:
		return "business"
	default:
		return "unknown"
	}
}

// KafkaError wraps errors with additional context
type KafkaError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]any
}

// Error implements the error interface
func (e *KafkaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *KafkaError) Unwrap() error {
	return e.Err
}

// IsPermanent checks if the error is permanent (should not be retried)
func (e *KafkaError) IsPermanent() bool {
	return e.Type == ErrorTypePermanent
}

// NewTransientError creates a new transient error
func NewTransientError(message string, err error) *KafkaError {
	return &KafkaError{
		Type:    ErrorTypeTransient,
		Message: message,
		Err:     err,
		Details: make(map[string]any),
	}
}

// NewPermanentError creates a new permanent error
func NewPermanentError(message string, err error) *KafkaError {
	return &KafkaError{
		Type:    ErrorTypePermanent,
		Message: message,
		Err:     err,
		Details: make(map[string]any),
	}
}

// NewBusinessError creates a new business logic error
func NewBusinessError(message string, err error) *KafkaError {
	return &KafkaError{
		Type:    ErrorTypeBusiness,
		Message: message,
		Err:     err,
		Details: make(map[string]any),
	}
}

// WithDetail adds a detail to the error
func (e *KafkaError) WithDetail(key string, value any) *KafkaError {
	e.Details[key] = value
	return e
}

// ClassifyError classifies an error as transient or permanent
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	// Unwrap KafkaError
	var kafkaErr *KafkaError
	if errors.As(err, &kafkaErr) {
		return kafkaErr.Type
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTransient
	}

	errorMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"timeout",
		"deadline exceeded",
		"no such host",
		"network is unreachable",
		"broken pipe",
		"connection reset",
		"i/o timeout",
		"temporary failure",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errorMsg, pattern) {
			return ErrorTypeTransient
		}
	}

	// Check for known permanent errors
	permanentPatterns := []string{
		"invalid message",
		"schema mismatch",
		"deserialization failed",
		"unknown topic",
		"invalid configuration",
	}

	for _, pattern := range permanentPatterns {
		if strings.Contains(errorMsg, pattern) {
			return ErrorTypePermanent
		}
	}

	// Default to permanent if we can't classify it
	return ErrorTypePermanent
}

// ShouldRetry determines if an error should be retried
func ShouldRetry(err error, currentRetries, maxRetries int) bool {
	if err == nil {
		return false
	}

	if currentRetries >= maxRetries {
		return false
	}

	errorType := ClassifyError(err)
	return errorType == ErrorTypeTransient
}
