package kvstore

import (
	"errors"
	"fmt"
)

// Code is the stable tag identifying an outcome.
type Code string

const (
	CodeKeyTooLong              Code = "KeyTooLong"
	CodeValueTooLarge           Code = "ValueTooLarge"
	CodeKeyExists               Code = "KeyExists"
	CodeKeyNotFound             Code = "KeyNotFound"
	CodeKeyExpired              Code = "KeyExpired"
	CodeDuplicateKeyInBatch     Code = "DuplicateKeyInBatch"
	CodeBatchTooLarge           Code = "BatchTooLarge"
	CodePersistenceWriteFailure Code = "PersistenceWriteFailure"
	CodePersistenceLoadFailure  Code = "PersistenceLoadFailure"
	CodeInvalidValue            Code = "InvalidValue"
	CodeInvalidTTL              Code = "InvalidTTL"
	CodeStoreClosed             Code = "StoreClosed"
)

var messages = map[Code]string{
	CodeKeyTooLong:              "Key length exceeds the maximum.",
	CodeValueTooLarge:           "Value size exceeds the maximum.",
	CodeKeyExists:               "Key already exists.",
	CodeKeyNotFound:             "Key not found.",
	CodeKeyExpired:              "Key has expired.",
	CodeDuplicateKeyInBatch:     "Duplicate key found in batch.",
	CodeBatchTooLarge:           "Batch size exceeds limit.",
	CodePersistenceWriteFailure: "Failed to write snapshot.",
	CodePersistenceLoadFailure:  "Failed to load snapshot.",
	CodeInvalidValue:            "Value is not a valid JSON document.",
	CodeInvalidTTL:              "TTL must not be negative.",
	CodeStoreClosed:             "Store is closed.",
}

// Message returns the human-readable text for c.
func (c Code) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return string(c)
}

// Error is the result of a failed operation.
//
// AppliedInMemory is set on PersistenceWriteFailure when the operation had
// already changed the table before the snapshot write failed. The change
// is not rolled back; call Flush to retry the write.
type Error struct {
	Code            Code
	Op              string
	Key             string
	AppliedInMemory bool
	Err             error
}

func (e *Error) Error() string {
	msg := "kvstore: " + e.Op
	if e.Key != "" {
		msg += fmt.Sprintf(" %q", e.Key)
	}
	msg += ": " + e.Code.Message()
	if e.AppliedInMemory {
		msg += " (applied in memory only)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same Code, so the sentinels below
// work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrKeyTooLong              = &Error{Code: CodeKeyTooLong}
	ErrValueTooLarge           = &Error{Code: CodeValueTooLarge}
	ErrKeyExists               = &Error{Code: CodeKeyExists}
	ErrKeyNotFound             = &Error{Code: CodeKeyNotFound}
	ErrKeyExpired              = &Error{Code: CodeKeyExpired}
	ErrDuplicateKeyInBatch     = &Error{Code: CodeDuplicateKeyInBatch}
	ErrBatchTooLarge           = &Error{Code: CodeBatchTooLarge}
	ErrPersistenceWriteFailure = &Error{Code: CodePersistenceWriteFailure}
	ErrPersistenceLoadFailure  = &Error{Code: CodePersistenceLoadFailure}
	ErrInvalidValue            = &Error{Code: CodeInvalidValue}
	ErrInvalidTTL              = &Error{Code: CodeInvalidTTL}
	ErrStoreClosed             = &Error{Code: CodeStoreClosed}
)

// CodeOf returns the Code carried by err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
