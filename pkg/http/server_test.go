package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type limitRequest struct {
	Limit int `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/limit", func(c echo.Context) error {
		req := &limitRequest{}
		if verr := ReadAndValidateRequest(c, req); verr != nil {
			return BadRequestResponse(c, verr)
		}
		return SuccessResponse(c, req.Limit)
	})
	e.GET("/boom", func(echo.Context) error { panic("boom") })
	e.GET("/down", func(c echo.Context) error {
		return AppErrorResponse(c, UnavailableError("store down"))
	})
}

func serve(s *Server, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestServer_ValidationEnvelope(t *testing.T) {
	s := NewServer(routes{}, WithMetricsPath(""))

	var ok APIResponse
	require.NoError(t, json.Unmarshal(serve(s, http.MethodGet, "/limit", nil).Body.Bytes(), &ok))
	assert.Equal(t, http.StatusOK, ok.Status)
	assert.EqualValues(t, 100, ok.Data)

	rec := serve(s, http.MethodGet, "/limit?limit=5000", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var bad struct {
		Status int               `json:"status"`
		Data   []ValidationError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bad))
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	require.Len(t, bad.Data, 1)
	assert.Equal(t, "ERR_LTE", bad.Data[0].Code)
	assert.Equal(t, "limit", bad.Data[0].Field)
	assert.Equal(t, "limit must be at most 1000", bad.Data[0].Message)
}

func TestServer_AppError(t *testing.T) {
	s := NewServer(routes{}, WithMetricsPath(""))
	var res APIResponse
	require.NoError(t, json.Unmarshal(serve(s, http.MethodGet, "/down", nil).Body.Bytes(), &res))
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Contains(t, res.Message, "Service Unavailable")
}

func TestServer_RecoversPanics(t *testing.T) {
	s := NewServer(routes{}, WithMetricsPath(""))
	rec := serve(s, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	s := NewServer(routes{}, WithMetricsPath(""), WithCORSOrigins([]string{"https://dash.example"}))

	rec := serve(s, http.MethodOptions, "/limit", map[string]string{
		echo.HeaderOrigin:                     "https://dash.example",
		echo.HeaderAccessControlRequestMethod: http.MethodGet,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodGet)

	rec = serve(s, http.MethodGet, "/limit", map[string]string{echo.HeaderOrigin: "https://evil.example"})
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	s := NewServer(routes{})
	serve(s, http.MethodGet, "/limit", nil)

	rec := serve(s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "barfeed_http_requests_total")
}
