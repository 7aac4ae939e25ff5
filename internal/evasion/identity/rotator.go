package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Profile describes the header surface of a real browser. Probes pick one
// per request so repeated lookups do not share an obvious client signature.
type Profile struct {
	Name           string
	UserAgent      string
	Accept         string
	AcceptLanguage string
	AcceptEncoding string
	Connection     string
	CacheControl   string
	Extra          map[string]string
	HeaderOrder    []string
	Weight         int
	SuccessRate    float64
	LastUsed       time.Time
}

type Rotator struct {
	profiles       map[string]*Profile
	enabled        []string
	rotate         bool
	spoofForwarded bool
	logger         *logrus.Logger
	mu             sync.RWMutex
}

func NewRotator(enabled []string, rotate, spoofForwarded bool, logger *logrus.Logger) (*Rotator, error) {
	if logger == nil {
		logger = logrus.New()
	}

	r := &Rotator{
		profiles:       builtinProfiles(),
		rotate:         rotate,
		spoofForwarded: spoofForwarded,
		logger:         logger,
	}

	if len(enabled) == 0 {
		for name := range r.profiles {
			r.enabled = append(r.enabled, name)
		}
	} else {
		for _, name := range enabled {
			if _, ok := r.profiles[name]; !ok {
				return nil, fmt.Errorf("unknown browser profile: %s", name)
			}
			r.enabled = append(r.enabled, name)
		}
	}
	return r, nil
}

func builtinProfiles() map[string]*Profile {
	return map[string]*Profile{
		"chrome_win": {
			Name:           "chrome_win",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
			AcceptLanguage: "en-US,en;q=0.9",
			AcceptEncoding: "gzip, deflate, br",
			Connection:     "keep-alive",
			CacheControl:   "max-age=0",
			Extra: map[string]string{
				"Upgrade-Insecure-Requests": "1",
				"Sec-Fetch-Dest":            "document",
				"Sec-Fetch-Mode":            "navigate",
				"Sec-Fetch-Site":            "none",
				"Sec-Fetch-User":            "?1",
			},
			HeaderOrder: []string{
				"Host", "Connection", "Upgrade-Insecure-Requests", "User-Agent", "Accept",
				"Sec-Fetch-Dest", "Sec-Fetch-Mode", "Sec-Fetch-Site", "Sec-Fetch-User",
				"Accept-Encoding", "Accept-Language", "Cache-Control",
			},
			Weight:      10,
			SuccessRate: 1.0,
		},
		"firefox_win": {
			Name:           "firefox_win",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0",
			Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			AcceptLanguage: "en-US,en;q=0.5",
			AcceptEncoding: "gzip, deflate, br",
			Connection:     "keep-alive",
			CacheControl:   "max-age=0",
			Extra: map[string]string{
				"Upgrade-Insecure-Requests": "1",
				"Sec-Fetch-Dest":            "document",
				"Sec-Fetch-Mode":            "navigate",
				"Sec-Fetch-Site":            "none",
				"Sec-Fetch-User":            "?1",
			},
			HeaderOrder: []string{
				"Host", "User-Agent", "Accept", "Accept-Language", "Accept-Encoding",
				"Connection", "Upgrade-Insecure-Requests", "Cache-Control",
			},
			Weight:      9,
			SuccessRate: 1.0,
		},
		"safari_mac": {
			Name:           "safari_mac",
			UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
			Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			AcceptLanguage: "en-US,en;q=0.9",
			AcceptEncoding: "gzip, deflate, br",
			Connection:     "keep-alive",
			CacheControl:   "max-age=0",
			Extra: map[string]string{
				"Upgrade-Insecure-Requests": "1",
			},
			HeaderOrder: []string{
				"Host", "User-Agent", "Accept", "Accept-Language", "Accept-Encoding",
				"Connection", "Upgrade-Insecure-Requests", "Cache-Control",
			},
			Weight:      8,
			SuccessRate: 1.0,
		},
		"chrome_android": {
			Name:           "chrome_android",
			UserAgent:      "Mozilla/5.0 (Linux; Android 14; SM-S921B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
			Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
			AcceptLanguage: "en-US,en;q=0.9",
			AcceptEncoding: "gzip, deflate, br",
			Connection:     "keep-alive",
			CacheControl:   "max-age=0",
			Extra: map[string]string{
				"Upgrade-Insecure-Requests": "1",
			},
			HeaderOrder: []string{
				"Host", "Connection", "Upgrade-Insecure-Requests", "User-Agent", "Accept",
				"Accept-Encoding", "Accept-Language", "Cache-Control",
			},
			Weight:      7,
			SuccessRate: 1.0,
		},
	}
}

// Next selects the profile for the upcoming request. With rotation on the
// pick is weighted random over the enabled set; otherwise the first enabled
// profile is returned every time.
func (r *Rotator) Next() *Profile {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.enabled) == 0 {
		return nil
	}

	var chosen *Profile
	if !r.rotate {
		chosen = r.profiles[r.enabled[0]]
	} else {
		total := 0
		for _, name := range r.enabled {
			total += r.profiles[name].Weight
		}
		randNum, _ := rand.Int(rand.Reader, big.NewInt(int64(total)))
		target := int(randNum.Int64())

		current := 0
		for _, name := range r.enabled {
			current += r.profiles[name].Weight
			if target < current {
				chosen = r.profiles[name]
				break
			}
		}
		if chosen == nil {
			chosen = r.profiles[r.enabled[len(r.enabled)-1]]
		}
	}

	chosen.LastUsed = time.Now()
	return chosen
}

// Apply stamps the profile's headers onto the request and, when enabled,
// attaches a spoofed X-Forwarded-For with a routable-looking address.
func (r *Rotator) Apply(req *http.Request, p *Profile) {
	if p == nil {
		return
	}

	req.Header.Set("User-Agent", p.UserAgent)
	req.Header.Set("Accept", p.Accept)
	req.Header.Set("Accept-Language", p.AcceptLanguage)
	req.Header.Set("Accept-Encoding", p.AcceptEncoding)
	req.Header.Set("Connection", p.Connection)
	if p.CacheControl != "" {
		req.Header.Set("Cache-Control", p.CacheControl)
	}
	for key, value := range p.Extra {
		req.Header.Set(key, value)
	}

	r.mu.RLock()
	spoof := r.spoofForwarded
	r.mu.RUnlock()
	if spoof {
		req.Header.Set("X-Forwarded-For", GenerateSpoofedIP().String())
	}

	reorderHeaders(req, p.HeaderOrder)
}

func reorderHeaders(req *http.Request, order []string) {
	newHeader := http.Header{}
	for _, key := range order {
		if values, exists := req.Header[key]; exists {
			for _, value := range values {
				newHeader.Add(key, value)
			}
			req.Header.Del(key)
		}
	}
	for key, values := range req.Header {
		for _, value := range values {
			newHeader.Add(key, value)
		}
	}
	req.Header = newHeader
}

// MarkResult folds a probe outcome into the profile's moving success rate.
func (r *Rotator) MarkResult(name string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, exists := r.profiles[name]; exists {
		if success {
			p.SuccessRate = (p.SuccessRate*9 + 1) / 10
		} else {
			p.SuccessRate = (p.SuccessRate * 9) / 10
		}
	}
}

func (r *Rotator) ProfileNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.enabled))
	copy(names, r.enabled)
	return names
}

func (r *Rotator) GetStats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	perProfile := make(map[string]interface{}, len(r.enabled))
	for _, name := range r.enabled {
		p := r.profiles[name]
		perProfile[name] = map[string]interface{}{
			"success_rate": p.SuccessRate,
			"last_used":    p.LastUsed,
			"weight":       p.Weight,
		}
	}

	return map[string]interface{}{
		"enabled_profiles": len(r.enabled),
		"rotate":           r.rotate,
		"spoof_forwarded":  r.spoofForwarded,
		"profiles":         perProfile,
	}
}

// GenerateSpoofedIP returns a random IPv4 address outside reserved and
// private ranges so the header survives superficial validation.
func GenerateSpoofedIP() net.IP {
	for attempts := 0; attempts < 20; attempts++ {
		ip := make(net.IP, 4)
		_, _ = rand.Read(ip)
		if !isBogonIPv4(ip) {
			return ip
		}
	}
	return net.IPv4(8, 8, 8, 8)
}

func isBogonIPv4(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return true
	}
	b0 := ip4[0]
	b1 := ip4[1]

	switch {
	case b0 == 0: // 0.0.0.0/8
		return true
	case b0 == 10: // 10.0.0.0/8
		return true
	case b0 == 100 && b1 >= 64 && b1 <= 127: // 100.64.0.0/10
		return true
	case b0 == 127: // 127.0.0.0/8
		return true
	case b0 == 169 && b1 == 254: // 169.254.0.0/16
		return true
	case b0 == 172 && b1 >= 16 && b1 <= 31: // 172.16.0.0/12
		return true
	case b0 == 192 && b1 == 0: // 192.0.0.0/24 (incl 192.0.2.0/24 test)
		return true
	case b0 == 192 && b1 == 168: // 192.168.0.0/16
		return true
	case b0 == 198 && (b1 == 18 || b1 == 19): // 198.18.0.0/15
		return true
	case b0 == 198 && b1 == 51: // 198.51.100.0/24 (test)
		return true
	case b0 == 203 && b1 == 0: // 203.0.113.0/24 (test)
		return true
	case b0 >= 224: // 224.0.0.0/4 multicast & 240/4 reserved
		return true
	default:
		return false
	}
}
