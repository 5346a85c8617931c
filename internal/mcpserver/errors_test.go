package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sims2k/citeloom-sub000/internal/errs"
)

func TestMapError_NilReturnsNil(t *testing.T) {
	require.Nil(t, MapError(nil))
}

func TestMapError_ProjectNotFoundMapsToInvalidProject(t *testing.T) {
	got := MapError(errs.ProjectNotFound("ghost"))
	require.Equal(t, CodeInvalidProject, got.Code)
}

func TestMapError_HybridNotSupportedMapsThrough(t *testing.T) {
	got := MapError(errs.HybridNotSupported("no sparse model bound"))
	require.Equal(t, CodeHybridNotSupported, got.Code)
}

func TestMapError_DeadlineExceededMapsToTimeout(t *testing.T) {
	got := MapError(context.DeadlineExceeded)
	require.Equal(t, CodeTimeout, got.Code)
}

func TestMapError_UnknownErrorMapsToInternal(t *testing.T) {
	got := MapError(errors.New("boom"))
	require.Equal(t, CodeInternalError, got.Code)
}
