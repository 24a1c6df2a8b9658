package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	svc "github.com/dropDatabas3/keygate/internal/http/services/oauth"
)

type stubRevokeService struct {
	err  error
	last *svc.RevokeRequest
}

func (s *stubRevokeService) Revoke(_ context.Context, req svc.RevokeRequest) error {
	s.last = &req
	return s.err
}

func TestRevokeEndpoint_AlwaysOK(t *testing.T) {
	stub := &stubRevokeService{}
	c := NewRevokeController(stub)

	form := url.Values{
		"token":           {"whatever"},
		"token_type_hint": {"refresh_token"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth/revoke", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("kg_client_abc", "s3cret")
	rec := httptest.NewRecorder()
	c.Revoke(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
	require.Equal(t, "whatever", stub.last.Token)
	require.Equal(t, "refresh_token", stub.last.TokenTypeHint)
	require.Equal(t, "kg_client_abc", stub.last.ClientID)
}

func TestRevokeEndpoint_InvalidClient(t *testing.T) {
	c := NewRevokeController(&stubRevokeService{err: svc.ErrTokenInvalidClient})

	form := url.Values{"token": {"x"}}
	req := httptest.NewRequest(http.MethodPost, "/oauth/revoke", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("kg_client_abc", "wrong")
	rec := httptest.NewRecorder()
	c.Revoke(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var e oauthError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	require.Equal(t, "invalid_client", e.Error)
}

func TestRevokeEndpoint_MethodNotAllowed(t *testing.T) {
	c := NewRevokeController(&stubRevokeService{})

	req := httptest.NewRequest(http.MethodGet, "/oauth/revoke", nil)
	rec := httptest.NewRecorder()
	c.Revoke(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
