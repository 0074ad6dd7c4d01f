package gin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gongin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/rolebridge/pkg/api"
	"github.com/mihaimyh/rolebridge/pkg/api/apitest"
)

func setupRouter(t *testing.T, middleware ...gongin.HandlerFunc) (*gongin.Engine, *apitest.Reconciler) {
	t.Helper()
	gongin.SetMode(gongin.TestMode)
	h, rec := apitest.NewHandler(t)
	r := gongin.New()
	Register(r, h, middleware...)
	return r, rec
}

func TestRegister_SignedWebhookIsReconciled(t *testing.T) {
	r, rec := setupRouter(t)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, apitest.SignedWebhook(t))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "sess_1", rec.Events()[0].SessionID)
}

func TestRegister_UnsignedWebhookRejected(t *testing.T) {
	r, rec := setupRouter(t)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, apitest.UnsignedWebhook())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rec.Events())
}

func TestRegister_PaymentLinkAndPlans(t *testing.T) {
	r, _ := setupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, api.BasePath+"/create-payment-link?discordId=42", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var link api.PaymentLinkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &link))
	assert.Equal(t, apitest.PaymentURL, link.URL)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, api.BasePath+"/plans", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var plans api.PlansResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plans))
	require.Len(t, plans.Plans, 1)
}

func TestRegister_MiddlewareRunsFirst(t *testing.T) {
	r, _ := setupRouter(t, func(c *gongin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	})
	w := httptest.NewRecorder()

	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, api.BasePath+"/create-payment-link?discordId=42", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
