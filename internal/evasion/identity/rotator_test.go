package identity_test

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/profilynx/internal/evasion/identity"
)

func TestNewRotator_UnknownProfile(t *testing.T) {
	_, err := identity.NewRotator([]string{"netscape_os2"}, true, false, nil)
	assert.Error(t, err)
}

func TestNext_OnlyEnabledProfiles(t *testing.T) {
	r, err := identity.NewRotator([]string{"chrome_win", "firefox_win"}, true, false, nil)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		p := r.Next()
		require.NotNil(t, p)
		seen[p.Name] = true
	}

	for name := range seen {
		assert.Contains(t, []string{"chrome_win", "firefox_win"}, name)
	}
}

func TestNext_FixedWhenRotationDisabled(t *testing.T) {
	r, err := identity.NewRotator([]string{"safari_mac", "chrome_win"}, false, false, nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.Equal(t, "safari_mac", r.Next().Name)
	}
}

func TestApply_StampsProfileHeaders(t *testing.T) {
	r, err := identity.NewRotator([]string{"chrome_win"}, false, false, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "https://example.com/user", nil)
	p := r.Next()
	r.Apply(req, p)

	assert.Equal(t, p.UserAgent, req.Header.Get("User-Agent"))
	assert.NotEmpty(t, req.Header.Get("Accept"))
	assert.NotEmpty(t, req.Header.Get("Accept-Language"))
	assert.Equal(t, "1", req.Header.Get("Upgrade-Insecure-Requests"))
	assert.Empty(t, req.Header.Get("X-Forwarded-For"))
}

func TestApply_SpoofedForwardedFor(t *testing.T) {
	r, err := identity.NewRotator([]string{"chrome_win"}, false, true, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "https://example.com/user", nil)
	r.Apply(req, r.Next())

	ip := net.ParseIP(req.Header.Get("X-Forwarded-For"))
	require.NotNil(t, ip)
	assert.False(t, ip.IsPrivate())
	assert.False(t, ip.IsLoopback())
}

func TestMarkResult_MovesSuccessRate(t *testing.T) {
	r, err := identity.NewRotator([]string{"chrome_win"}, false, false, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		r.MarkResult("chrome_win", false)
	}

	stats := r.GetStats()
	perProfile := stats["profiles"].(map[string]interface{})
	chrome := perProfile["chrome_win"].(map[string]interface{})
	assert.Less(t, chrome["success_rate"].(float64), 1.0)
}

func TestGenerateSpoofedIP_AvoidsReservedRanges(t *testing.T) {
	for i := 0; i < 200; i++ {
		ip := identity.GenerateSpoofedIP()
		require.NotNil(t, ip.To4())
		assert.False(t, ip.IsPrivate(), "got private ip %s", ip)
		assert.False(t, ip.IsLoopback(), "got loopback ip %s", ip)
		assert.False(t, ip.IsMulticast(), "got multicast ip %s", ip)
		assert.False(t, ip.IsLinkLocalUnicast(), "got link-local ip %s", ip)
	}
}
