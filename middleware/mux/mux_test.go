package mux

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/rolebridge/pkg/api"
	"github.com/mihaimyh/rolebridge/pkg/api/apitest"
)

func TestRegister(t *testing.T) {
	h, rec := apitest.NewHandler(t)
	r := mux.NewRouter()
	routes := Register(r, h)
	assert.Len(t, routes, len(h.Routes()))

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"signed webhook", apitest.SignedWebhook(t), http.StatusOK},
		{"unsigned webhook", apitest.UnsignedWebhook(), http.StatusBadRequest},
		{"webhook wrong method", httptest.NewRequest(http.MethodGet, api.BasePath, nil), http.StatusMethodNotAllowed},
		{"plans", httptest.NewRequest(http.MethodGet, api.BasePath+"/plans", nil), http.StatusOK},
		{"payment link", httptest.NewRequest(http.MethodGet, api.BasePath+"/create-payment-link?discordId=42", nil), http.StatusOK},
		{"healthz", httptest.NewRequest(http.MethodGet, "/healthz", nil), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, tt.req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	require.Len(t, rec.Events(), 1)
}
