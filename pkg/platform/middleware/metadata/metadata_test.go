package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"sanctum/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4"},
			want:       "198.51.100.4",
		},
		{
			name:       "x-forwarded-for chain takes first",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.2, 10.0.0.3"},
			want:       "198.51.100.4",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "192.0.2.9"},
			want:       "192.0.2.9",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[::1]:8080",
			want:       "[::1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(r))
		})
	}
}

func TestSummarizeUserAgent(t *testing.T) {
	t.Run("browser UA yields short form", func(t *testing.T) {
		const chrome = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
		got := SummarizeUserAgent(chrome)
		assert.Contains(t, got, "Chrome")
		assert.NotContains(t, got, "AppleWebKit")
	})

	t.Run("scripted client falls back to first token", func(t *testing.T) {
		assert.Equal(t, "curl", SummarizeUserAgent("curl/8.4.0"))
	})

	t.Run("empty stays empty", func(t *testing.T) {
		assert.Equal(t, "", SummarizeUserAgent(""))
	})
}

func TestClientMetadata_PopulatesContext(t *testing.T) {
	var gotIP, gotUA string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	r.Header.Set("User-Agent", "curl/8.4.0")

	ClientMetadata(inner).ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "203.0.113.7", gotIP)
	assert.Equal(t, "curl/8.4.0", gotUA)
}
