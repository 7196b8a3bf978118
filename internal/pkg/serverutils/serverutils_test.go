package serverutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/me", NewJwtMiddleware(secret), func(ctx *fiber.Ctx) error {
		return ctx.JSON(SuccessResponse("ok", UserID(ctx)))
	})
	app.Get("/boom", func(ctx *fiber.Ctx) error {
		return errors.New("database password leaked")
	})
	app.Get("/teapot", func(ctx *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})
	return app
}

func decode(t *testing.T, body io.Reader) Response[any] {
	t.Helper()
	var out Response[any]
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestJwtMiddleware(t *testing.T) {
	app := newApp()
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		header string
		status int
		data   interface{}
	}{
		{name: "user_id claim", header: "Bearer " + sign(t, jwt.MapClaims{"user_id": "u1", "exp": exp}, secret), status: 200, data: "u1"},
		{name: "sub claim", header: "Bearer " + sign(t, jwt.MapClaims{"sub": "u2", "exp": exp}, secret), status: 200, data: "u2"},
		{name: "missing header", header: "", status: 401},
		{name: "wrong key", header: "Bearer " + sign(t, jwt.MapClaims{"user_id": "u1"}, "other"), status: 401},
		{name: "expired", header: "Bearer " + sign(t, jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(-time.Hour).Unix()}, secret), status: 401},
		{name: "no subject", header: "Bearer " + sign(t, jwt.MapClaims{"exp": exp}, secret), status: 401},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.data != nil {
				assert.Equal(t, tt.data, decode(t, resp.Body).Data)
			}
		})
	}
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := newApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	body := decode(t, resp.Body)
	assert.False(t, body.Success)
	assert.Equal(t, "Internal server error", body.Message)

	resp, err = app.Test(httptest.NewRequest("GET", "/teapot", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "short and stout", decode(t, resp.Body).Message)
}

func TestValidateRequest(t *testing.T) {
	type req struct {
		Query string `validate:"required,max=5"`
	}

	assert.NoError(t, ValidateRequest(req{Query: "pizza"}))

	err := ValidateRequest(req{Query: "too long"})
	var fe *fiber.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fiber.StatusBadRequest, fe.Code)
	assert.Contains(t, fe.Message, "Query must satisfy max=5")

	err = ValidateRequest(req{})
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Message, "Query must satisfy required")
}

func TestParseTokenWithoutSecret(t *testing.T) {
	_, err := ParseToken("", "anything")
	assert.Error(t, err)
}
