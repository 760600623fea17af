package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/smsconsole-backend/internal/errors"
	"github.com/unclebandit/smsconsole-backend/internal/gateway"
)

func TestSendPostsFormWithBasicAuth(t *testing.T) {
	var gotPath, gotUser, gotPass string
	var gotForm map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"to":            r.PostFormValue("to"),
			"message":       r.PostFormValue("message"),
			"from":          r.PostFormValue("from"),
			"whendelivered": r.PostFormValue("whendelivered"),
		}
		w.Write([]byte(`{"id": "s1234", "status": "created"}`))
	}))
	defer srv.Close()

	client := gateway.NewHTTPClient(srv.URL, "user", "secret")
	result, err := client.Send(context.Background(), "+46700000001", "hello\nthere", "+46766861004", "https://example.com/dlr")
	require.NoError(t, err)

	assert.Equal(t, "s1234", result.ExternalID)
	assert.Equal(t, "/sms", gotPath)
	assert.Equal(t, "user", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, "+46700000001", gotForm["to"])
	assert.Equal(t, "hello\nthere", gotForm["message"])
	assert.Equal(t, "+46766861004", gotForm["from"])
	assert.Equal(t, "https://example.com/dlr", gotForm["whendelivered"])
}

func TestSendAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := gateway.NewHTTPClient(srv.URL, "user", "wrong")
	_, err := client.Send(context.Background(), "+46700000001", "hi", "+46766861004", "")
	assert.ErrorIs(t, err, appErrors.ErrGatewayAuth)
}

func TestSendRejectedNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid to number", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := gateway.NewHTTPClient(srv.URL, "user", "secret")
	_, err := client.Send(context.Background(), "bogus", "hi", "+46766861004", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, appErrors.ErrGatewayAuth)
	assert.NotErrorIs(t, err, appErrors.ErrGatewayUnreachable)
}

func TestSendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := gateway.NewHTTPClient(srv.URL, "user", "secret")
	_, err := client.Send(context.Background(), "+46700000001", "hi", "+46766861004", "")
	assert.ErrorIs(t, err, appErrors.ErrGatewayUnreachable)
}

func TestRetryReturnsNewID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"id": "s9999"}`))
	}))
	defer srv.Close()

	client := gateway.NewHTTPClient(srv.URL, "user", "secret")
	result, err := client.Retry(context.Background(), "s1234")
	require.NoError(t, err)

	assert.Equal(t, "s9999", result.ExternalID)
	assert.Equal(t, "/sms/s1234/retry", gotPath)
}
