package gpferrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthentificationError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := NewAuthentificationError("token acquisition failed", cause)

	require.Equal(t, "token acquisition failed", err.Error())
	require.ErrorIs(t, err, cause)
}

func TestGpfSdkError_FormatsWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewGpfSdkError("unreachable server", cause)

	require.Contains(t, err.Error(), "unreachable server")
	require.Contains(t, err.Error(), "connection refused")
	require.ErrorIs(t, err, cause)
}

func TestGpfSdkError_NoCause(t *testing.T) {
	err := NewGpfSdkError("URL invalide", nil)
	require.Equal(t, "URL invalide", err.Error())
}

func TestWorkflowError_IncludesStepName(t *testing.T) {
	err := NewWorkflowError("upload-step", "upload", "type inconnu", nil)
	require.Contains(t, err.Error(), "upload-step")
	require.Contains(t, err.Error(), "type inconnu")
}

func TestConflictError_CarriesBody(t *testing.T) {
	body := []byte(`{"message":"already exists"}`)
	err := NewConflictError("conflit lors de la création", body)
	require.Equal(t, body, err.Body)
	require.Equal(t, 409, err.Status)
}

func TestRouteNotFoundError_MessageNamesRoute(t *testing.T) {
	err := NewRouteNotFoundError("upload_get")
	require.Contains(t, err.Error(), "upload_get")
}
