package jsonerr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorWritesJSONBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, &Response{Code: "NotFound", Message: "package not found"}, http.StatusNotFound)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var got Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "NotFound", got.Code)
	require.Equal(t, "package not found", got.Message)
}
