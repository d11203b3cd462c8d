package apperr

import (
	"errors"
	"fmt"
)

// Kind is the machine-checkable category of a failure.
type Kind string

const (
	KindMissingInput             Kind = "missing_input"
	KindInvalidInputKind         Kind = "invalid_input_kind"
	KindStorageUnavailable       Kind = "storage_unavailable"
	KindCompletionService        Kind = "completion_service_error"
	KindMissingGroundingDocument Kind = "missing_grounding_document"
	KindNotAuthorized            Kind = "not_authorized"
	KindNotFound                 Kind = "not_found"
	KindNameCollision            Kind = "name_collision"
	KindDeserialization          Kind = "deserialization_error"
	KindExtraction               Kind = "extraction_failed"
	KindInternal                 Kind = "internal"
)

// Sentinels usable with errors.Is; any *Error of the same kind matches.
var (
	ErrMissingInput             = &Error{Kind: KindMissingInput, Message: "required input is missing"}
	ErrInvalidInputKind         = &Error{Kind: KindInvalidInputKind, Message: "input is not of the expected kind"}
	ErrStorageUnavailable       = &Error{Kind: KindStorageUnavailable, Message: "object storage unavailable"}
	ErrCompletionService        = &Error{Kind: KindCompletionService, Message: "completion service failed"}
	ErrMissingGroundingDocument = &Error{Kind: KindMissingGroundingDocument, Message: "session has no grounding document"}
	ErrNotAuthorized            = &Error{Kind: KindNotAuthorized, Message: "not authorized"}
	ErrNotFound                 = &Error{Kind: KindNotFound, Message: "not found"}
	ErrNameCollision            = &Error{Kind: KindNameCollision, Message: "session name already taken"}
	ErrDeserialization          = &Error{Kind: KindDeserialization, Message: "unexpected response shape"}
	ErrExtraction               = &Error{Kind: KindExtraction, Message: "text extraction failed"}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so wrapped errors match the package sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func MissingInput(message string) *Error {
	return New(KindMissingInput, message, nil)
}

func InvalidInputKind(message string, err error) *Error {
	return New(KindInvalidInputKind, message, err)
}

func StorageUnavailable(message string, err error) *Error {
	return New(KindStorageUnavailable, message, err)
}

func CompletionService(message string, err error) *Error {
	return New(KindCompletionService, message, err)
}

func Deserialization(message string, err error) *Error {
	return New(KindDeserialization, message, err)
}

func Extraction(message string, err error) *Error {
	return New(KindExtraction, message, err)
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
