package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
)

// AdminMiddlewareSuite covers the invariant that a request without a valid
// admin token never reaches the handler.
type AdminMiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
	key    []byte
}

func TestAdminMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AdminMiddlewareSuite))
}

func (s *AdminMiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.key = []byte("test-admin-signing-key")
}

func (s *AdminMiddlewareSuite) serve(authHeader, userAgent string) (*httptest.ResponseRecorder, string, string, bool) {
	var actor, client string
	called := false
	handler := RequireAdminToken(s.key, s.logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			actor = GetAdminActorID(r.Context())
			client = GetAdminClient(r.Context())
			w.WriteHeader(http.StatusOK)
		}),
	)
	req := httptest.NewRequest(http.MethodPost, "/admin/cooldown/reset", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, actor, client, called
}

func (s *AdminMiddlewareSuite) TestValidToken() {
	token, err := IssueToken(s.key, "ops@garage", time.Hour, time.Now())
	s.Require().NoError(err)

	w, actor, client, called := s.serve("Bearer "+token, "resolverctl/1.0")

	s.True(called)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("ops@garage", actor)
	s.Equal("resolverctl", client)
}

func (s *AdminMiddlewareSuite) TestRejectedTokens() {
	expired, err := IssueToken(s.key, "ops", time.Minute, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	foreign, err := IssueToken([]byte("other-key"), "ops", time.Hour, time.Now())
	s.Require().NoError(err)
	wrongAudience, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		Audience:  jwt.ClaimStrings{"someone-else"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(s.key)
	s.Require().NoError(err)

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage":        "Bearer not-a-jwt",
		"expired":        "Bearer " + expired,
		"wrong key":      "Bearer " + foreign,
		"wrong audience": "Bearer " + wrongAudience,
		"empty bearer":   "Bearer   ",
	}
	for name, header := range cases {
		s.Run(name, func() {
			w, _, _, called := s.serve(header, "")
			s.False(called, "handler must not run")
			s.Equal(http.StatusUnauthorized, w.Code)
		})
	}
}

func (s *AdminMiddlewareSuite) TestDisabledWithoutKey() {
	token, err := IssueToken(s.key, "ops", time.Hour, time.Now())
	s.Require().NoError(err)

	called := false
	handler := RequireAdminToken(nil, s.logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	s.False(called)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *AdminMiddlewareSuite) TestIssueTokenValidation() {
	_, err := IssueToken(nil, "ops", time.Hour, time.Now())
	s.Error(err)
	_, err = IssueToken(s.key, " ", time.Hour, time.Now())
	s.Error(err)
}

func (s *AdminMiddlewareSuite) TestDescribeClient() {
	s.Equal("", describeClient(""))
	s.Equal("curl", describeClient("curl/8.5.0"))
	s.Contains(describeClient("Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"), "Firefox")
}
