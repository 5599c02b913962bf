package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectExecutorGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		w.WriteHeader(200)
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	exec := NewDirectExecutor(nil)
	resp, err := exec.Execute(context.Background(), Request{
		Method: MethodGet,
		URL:    server.URL,
		Params: []Param{{Name: "page", Value: "1"}},
	})

	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "hello", string(resp.Data))
}

func TestDirectExecutorNon2xxIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer server.Close()

	exec := NewDirectExecutor(nil)
	resp, err := exec.Execute(context.Background(), testRequest(server.URL))

	require.NoError(t, err)
	assert.Equal(t, 404, resp.Status)
}

func TestDirectExecutorNetworkErrorMapsToResponseError(t *testing.T) {
	exec := NewDirectExecutor(nil)
	_, err := exec.Execute(context.Background(), testRequest("http://127.0.0.1:1"))

	require.Error(t, err)
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
}
