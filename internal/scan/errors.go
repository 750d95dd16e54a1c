package scan

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for the transport layer.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindUnrecognized
	KindAnalysis
	KindParse
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnrecognized:
		return "unrecognized_content"
	case KindAnalysis:
		return "analysis_failure"
	case KindParse:
		return "parse_failure"
	case KindPersistence:
		return "persistence_failure"
	}
	return "unknown"
}

// User-facing messages.
const (
	MsgNoImage           = "No image provided"
	MsgInvalidImage      = "Invalid base64 image format"
	MsgSaveImage         = "Failed to save image"
	MsgUnrecognized      = "The uploaded image does not contain identifiable construction content. Please upload an image showing construction tools, materials, or buildings."
	MsgAnalysisFailed    = "AI analysis failed"
	MsgInvalidAIResponse = "Invalid AI response format"
	MsgSaveTools         = "Failed to save scan results"
	MsgSaveMaterials     = "Failed to save material scan results"
	MsgSaveBuilding      = "Failed to save building scan results"
	MsgProcessCombined   = "Failed to process combined scan results"
)

// Error is a classified pipeline failure. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or zero if err is not a pipeline Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
