package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidTransition    = errors.New("invalid lifecycle transition")
	ErrConfirmationRequired = errors.New("operator confirmation required")
	ErrLocked               = errors.New("lifecycle is locked by another run")
)

// NotFoundError reports a missing index or snapshot. It matches ErrNotFound.
type NotFoundError struct {
	Resource string
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// RemoteError is a non-2xx answer from the search management API.
type RemoteError struct {
	Status int
	Body   string
	// RetryAfter is the wait the service asked for, if any.
	RetryAfter time.Duration
}

func (e *RemoteError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("search API returned %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("search API returned %d", e.Status)
}

// Message extracts error.message from the API's error envelope and falls back
// to the raw body.
func (e *RemoteError) Message() string {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	const max = 512
	if len(e.Body) > max {
		return e.Body[:max] + "..."
	}
	return e.Body
}

// StorageError wraps a blob read, write, list or delete failure.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// SerializationError reports a stored definition that cannot be used.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("snapshot %q is malformed: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}
