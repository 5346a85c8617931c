package mcpserver

import (
	"context"
	"errors"

	"github.com/Sims2k/citeloom-sub000/internal/errs"
)

// Error codes for the tool protocol's {error:{code,message,details}}
// envelope, per spec §6.
const (
	CodeInvalidProject     = "INVALID_PROJECT"
	CodeEmbeddingMismatch  = "EMBEDDING_MISMATCH"
	CodeHybridNotSupported = "HYBRID_NOT_SUPPORTED"
	CodeIndexUnavailable   = "INDEX_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeUnknownTool        = "UNKNOWN_TOOL"
	CodeInternalError      = "INTERNAL_ERROR"
)

// ToolError is the body of the error envelope every tool output carries.
type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// MapError translates an internal error into the tool protocol's error
// envelope, preferring the errs.Kind taxonomy when the error carries one.
func MapError(err error) *ToolError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ToolError{Code: CodeTimeout, Message: err.Error()}
	}

	var appErr *errs.Error
	if errors.As(err, &appErr) {
		return &ToolError{Code: codeForKind(appErr.Kind), Message: appErr.Message, Details: appErr.Details}
	}
	return &ToolError{Code: CodeInternalError, Message: err.Error()}
}

func codeForKind(kind errs.Kind) string {
	switch kind {
	case errs.KindProjectNotFound:
		return CodeInvalidProject
	case errs.KindEmbeddingModelMismatch:
		return CodeEmbeddingMismatch
	case errs.KindHybridNotSupported:
		return CodeHybridNotSupported
	case errs.KindInvalidInput:
		return CodeInvalidInput
	default:
		return CodeInternalError
	}
}
