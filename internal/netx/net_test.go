package netx

import (
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		trusted []netip.Prefix
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr", remote: "10.0.0.5:41234", want: "10.0.0.5"},
		{name: "remote addr without port", remote: "10.0.0.5", want: "10.0.0.5"},
		{name: "forged forwarded ignored without trusted proxies", headers: map[string]string{"X-Forwarded-For": "203.0.113.7"}, remote: "198.51.100.9:80", want: "198.51.100.9"},
		{name: "forged real ip ignored from untrusted peer", trusted: trusted, headers: map[string]string{"X-Real-IP": "203.0.113.7"}, remote: "198.51.100.9:80", want: "198.51.100.9"},
		{name: "forwarded chain through trusted proxies", trusted: trusted, headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.1.2.3"}, remote: "10.0.0.1:80", want: "203.0.113.7"},
		{name: "spoofed leftmost entry skipped", trusted: trusted, headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.7, 10.1.2.3"}, remote: "10.0.0.1:80", want: "203.0.113.7"},
		{name: "real ip from trusted peer", trusted: trusted, headers: map[string]string{"X-Real-IP": " 198.51.100.2 "}, remote: "192.0.2.1:80", want: "198.51.100.2"},
		{name: "empty forwarded falls through", trusted: trusted, headers: map[string]string{"X-Forwarded-For": " , "}, remote: "192.0.2.1:80", want: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r, tt.trusted))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", "", "2001:db8::/32"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 32, got[1].Bits())

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}
