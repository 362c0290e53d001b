package sms

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"waitlist/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *TwilioClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTwilioClient(config.SMSConfig{
		AccountSID: "AC123",
		AuthToken:  "secret",
		BaseURL:    srv.URL,
		Timeout:    time.Second,
	})
}

func TestTwilioSend(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15145550000", r.PostForm.Get("From"))
		assert.Equal(t, "+15145550101", r.PostForm.Get("To"))
		assert.Equal(t, "hello", r.PostForm.Get("Body"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	})

	id, err := client.Send(context.Background(), "+15145550000", "+15145550101", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM42", id)
}

func TestTwilioErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{"InvalidNumber", http.StatusBadRequest, `{"code":21211,"message":"Invalid 'To' Phone Number"}`, true},
		{"Unsubscribed", http.StatusBadRequest, `{"code":21610,"message":"unsubscribed"}`, true},
		{"BadRequest", http.StatusBadRequest, `{}`, true},
		{"Unauthorized", http.StatusUnauthorized, `{"code":20003,"message":"auth"}`, true},
		{"TooManyRequests", http.StatusTooManyRequests, `{"code":20429,"message":"slow down"}`, false},
		{"ServerError", http.StatusInternalServerError, ``, false},
		{"BadGateway", http.StatusBadGateway, `oops`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Send(context.Background(), "+15145550000", "+15145550101", "hi")
			require.Error(t, err)
			assert.Equal(t, tt.permanent, IsPermanent(err))

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestTwilioNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewTwilioClient(config.SMSConfig{AccountSID: "AC1", BaseURL: url, Timeout: time.Second})
	_, err := client.Send(context.Background(), "a", "b", "c")
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestLogProvider(t *testing.T) {
	logger := zerolog.New(io.Discard)
	id, err := NewLogProvider(&logger).Send(context.Background(), "from", "to", "body")
	require.NoError(t, err)
	assert.Contains(t, id, "log-")
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		region  string
		want    string
		wantErr bool
	}{
		{"NationalCanada", "(514) 234-5678", "CA", "+15142345678", false},
		{"AlreadyE164", "+33 6 12 34 56 78", "CA", "+33612345678", false},
		{"Garbage", "not a number", "CA", "", true},
		{"TooShort", "123", "CA", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.raw, tt.region)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
