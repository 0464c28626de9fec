package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	e := ErrInvalidParam.WithDetail("thumbnail must equal page 0")
	require.Equal(t, "thumbnail must equal page 0", e.Detail)
	require.Empty(t, ErrInvalidParam.Detail)
	require.True(t, stderrors.Is(e, ErrInvalidParam))
}

func TestAsAppErrorThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", ErrRecordNotFound)
	require.True(t, IsAppError(wrapped))
	require.Equal(t, CodeRecordNotFound, AsAppError(wrapped).Code)
	require.True(t, IsNotFound(wrapped))

	plain := AsAppError(stderrors.New("boom"))
	require.Equal(t, CodeUnknown, plain.Code)
	require.Equal(t, http.StatusInternalServerError, plain.HTTPStatus)
}

func TestCodeToHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusConflict, New(CodeInvalidState, "x").HTTPStatus)
	require.Equal(t, http.StatusServiceUnavailable, New(CodeProviderError, "x").HTTPStatus)
	require.Equal(t, http.StatusBadRequest, New(CodeParseFailed, "x").HTTPStatus)
}
