package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/require"
)

func TestCodeExtractsTaggedCode(t *testing.T) {
	err := New(CodeTranscription, "whisper rejected %d bytes", 42)

	require.Equal(t, CodeTranscription, Code(err))
	require.True(t, Is(err, CodeTranscription))
	require.False(t, Is(err, CodeDecode))
}

func TestCodeSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("turn failed: %w", New(CodeSynthesis, "no audio"))

	require.Equal(t, CodeSynthesis, Code(err))
}

func TestCodeUntaggedErrors(t *testing.T) {
	require.Empty(t, Code(errors.New("plain")))
	require.Empty(t, Code(oops.Errorf("oops without a code")))
	require.Empty(t, Code(oops.Code(42).Errorf("non-string code")))
	require.Empty(t, Code(nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[string]int{
		CodeDecode:          http.StatusBadRequest,
		CodeProtocol:        http.StatusBadRequest,
		CodeSessionNotFound: http.StatusNotFound,
		CodeCompletion:      http.StatusInternalServerError,
		CodePersistence:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, HTTPStatus(New(code, "boom")), code)
	}

	require.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}
