package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/set-night/llmgate/internal/callback"
	"github.com/set-night/llmgate/internal/config"
	"github.com/set-night/llmgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockHandshaker struct {
	mock.Mock
}

func (m *mockHandshaker) Handshake(agentID int64, q callback.Query, echo string) (string, error) {
	args := m.Called(agentID, q, echo)
	return args.String(0), args.Error(1)
}

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) HandleDelivery(ctx context.Context, routeAgentID int64, q callback.Query, body []byte) ([]byte, error) {
	args := m.Called(routeAgentID, q, body)
	reply, _ := args.Get(0).([]byte)
	return reply, args.Error(1)
}

type mockPinger struct {
	mock.Mock
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.Called().Error(0)
}

type fixture struct {
	verifier *mockHandshaker
	gateway  *mockDeliverer
	store    *mockPinger
	router   *gin.Engine
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		verifier: &mockHandshaker{},
		gateway:  &mockDeliverer{},
		store:    &mockPinger{},
		router:   gin.New(),
	}
	New(Deps{Verifier: f.verifier, Gateway: f.gateway, Store: f.store}).Register(f.router)
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

var testQuery = callback.Query{Signature: "sig", Timestamp: "1708218294", Nonce: "n1"}

func callbackURL(agent string, extra url.Values) string {
	v := url.Values{}
	v.Set("msg_signature", testQuery.Signature)
	v.Set("timestamp", testQuery.Timestamp)
	v.Set("nonce", testQuery.Nonce)
	for k, vals := range extra {
		v[k] = vals
	}
	return fmt.Sprintf("/callback/%s?%s", agent, v.Encode())
}

func TestHandshake(t *testing.T) {
	f := newFixture()
	echo := "P9nAzCzyDtyTWESHep1vC5X9xho/qYX3Zpb4yKa9SKld1DsH3Iyt3tP3zNdtp+4RPcs8TgAE7OaBO+FZXvnaqQ=="
	f.verifier.On("Handshake", int64(1000002), testQuery, echo).Return("1616140317555161061", nil).Once()

	w := f.do(httptest.NewRequest(http.MethodGet, callbackURL("1000002", url.Values{"echostr": {echo}}), nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1616140317555161061", w.Body.String())
	f.verifier.AssertExpectations(t)
	f.store.AssertNotCalled(t, "Ping")
}

func TestHandshake_Rejected(t *testing.T) {
	f := newFixture()
	f.verifier.On("Handshake", mock.Anything, mock.Anything, mock.Anything).Return("", fmt.Errorf("%w: signature mismatch", domain.ErrAuth))

	w := f.do(httptest.NewRequest(http.MethodGet, callbackURL("1000002", url.Values{"echostr": {"x"}}), nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandshake_BadAgentID(t *testing.T) {
	f := newFixture()
	w := f.do(httptest.NewRequest(http.MethodGet, callbackURL("abc", nil), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	f.verifier.AssertNotCalled(t, "Handshake", mock.Anything, mock.Anything, mock.Anything)
}

func TestDelivery(t *testing.T) {
	f := newFixture()
	body := "<xml><Encrypt><![CDATA[abc]]></Encrypt></xml>"
	f.gateway.On("HandleDelivery", int64(1000002), testQuery, []byte(body)).
		Return([]byte("<xml><Encrypt>sealed</Encrypt></xml>"), nil).Once()

	w := f.do(httptest.NewRequest(http.MethodPost, callbackURL("1000002", nil), strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<xml><Encrypt>sealed</Encrypt></xml>", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
	f.gateway.AssertExpectations(t)
}

func TestDelivery_EmptyReply(t *testing.T) {
	f := newFixture()
	f.gateway.On("HandleDelivery", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Once()

	w := f.do(httptest.NewRequest(http.MethodPost, callbackURL("1000002", nil), strings.NewReader("<xml/>")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestDelivery_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth", fmt.Errorf("%w: stale", domain.ErrAuth), http.StatusUnauthorized},
		{"integrity", fmt.Errorf("%w: bad padding", domain.ErrIntegrity), http.StatusBadRequest},
		{"replay", domain.ErrReplay, http.StatusOK},
		{"store", fmt.Errorf("claim nonce: %w", errors.Join(domain.ErrStore, errors.New("conn refused"))), http.StatusInternalServerError},
		{"unexpected", errors.New("surprise"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.gateway.On("HandleDelivery", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			w := f.do(httptest.NewRequest(http.MethodPost, callbackURL("1000002", nil), strings.NewReader("<xml/>")))
			assert.Equal(t, tt.want, w.Code)
			assert.Empty(t, w.Body.String())
		})
	}
}

func TestDelivery_BodyTooLarge(t *testing.T) {
	f := newFixture()
	big := strings.Repeat("a", config.MaxCallbackBody+1)

	w := f.do(httptest.NewRequest(http.MethodPost, callbackURL("1000002", nil), strings.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	f.gateway.AssertNotCalled(t, "HandleDelivery", mock.Anything, mock.Anything, mock.Anything)
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := newFixture()
		f.store.On("Ping").Return(nil).Once()

		w := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		f := newFixture()
		f.store.On("Ping").Return(errors.New("dial tcp: refused")).Once()

		w := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"status":"unavailable"}`, w.Body.String())
	})
}
