package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emsops/emsops/internal/platform/apperr"
)

func TestFailure_ClassifiedErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   apperr.Kind
	}{
		{"validation", apperr.ValidationField("patient.dni", "dni is required"), http.StatusBadRequest, apperr.KindValidation},
		{"not found", apperr.NotFound("patient", "id", "42"), http.StatusNotFound, apperr.KindNotFound},
		{"conflict", apperr.Conflict("inventory already recorded"), http.StatusConflict, apperr.KindConflict},
		{"forbidden", apperr.Forbidden("staff is inactive"), http.StatusForbidden, apperr.KindForbidden},
		{"echo 404", echo.NewHTTPError(http.StatusNotFound, "route not found"), http.StatusNotFound, apperr.KindNotFound},
		{"echo 400", echo.NewHTTPError(http.StatusBadRequest, "bad body"), http.StatusBadRequest, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := Failure(tt.err)
			assert.Equal(t, tt.status, status)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.kind, env.Error.Kind)
		})
	}
}

func TestFailure_InternalMessageIsSanitized(t *testing.T) {
	status, env := Failure(errors.New("pq: connection refused at 10.0.0.3"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, genericInternalMessage, env.Message)
	assert.NotContains(t, env.Message, "10.0.0.3")
}

func TestFailure_CarriesFieldAndKey(t *testing.T) {
	_, env := Failure(apperr.NotFound("diagnosis", "id", "d-1").WithField("care_transfer.diagnosis_id"))
	require.NotNil(t, env.Error)
	assert.Equal(t, "care_transfer.diagnosis_id", env.Error.Field)
	assert.Equal(t, "d-1", env.Error.Key)
}

func TestErrorHandler_WritesEnvelope(t *testing.T) {
	e := echo.New()
	e.JSONSerializer = JSONSerializer{}
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	e.GET("/boom", func(c echo.Context) error {
		c.Set("request_id", "req-1")
		return apperr.Validation("bad input")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "bad input", env.Message)
	assert.Equal(t, "req-1", env.RequestID)
}

func TestOK_WritesSuccessEnvelope(t *testing.T) {
	e := echo.New()
	e.JSONSerializer = JSONSerializer{}
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, OK(c, http.StatusCreated, "created", map[string]string{"id": "x"}))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"success":true`))
	assert.True(t, strings.Contains(rec.Body.String(), `"id":"x"`))
}

func TestJSONSerializer_SyntaxErrorIsBadRequest(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":`))
	c := e.NewContext(req, httptest.NewRecorder())

	var dst map[string]interface{}
	err := JSONSerializer{}.Deserialize(c, &dst)
	require.Error(t, err)
}
