package proxies

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	xproxy "golang.org/x/net/proxy"
)

type Strategy int

const (
	RoundRobin Strategy = iota
	Random
	LatencyBased
)

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "round_robin":
		return RoundRobin, nil
	case "random":
		return Random, nil
	case "latency":
		return LatencyBased, nil
	default:
		return RoundRobin, fmt.Errorf("unknown proxy strategy: %s", s)
	}
}

func (s Strategy) String() string {
	switch s {
	case RoundRobin:
		return "round_robin"
	case Random:
		return "random"
	case LatencyBased:
		return "latency"
	default:
		return "unknown"
	}
}

type Proxy struct {
	URL          *url.URL
	Type         string
	Latency      time.Duration
	SuccessRate  float64
	LastUsed     time.Time
	LastChecked  time.Time
	FailureCount int
	Credentials  *Auth
}

type Auth struct {
	Username string
	Password string
}

// Pool hands out egress proxies to the probe engine. Proxies that fail
// repeatedly are benched until a health check clears them again.
type Pool struct {
	proxies     []*Proxy
	active      []*Proxy
	benched     map[string]time.Time
	strategy    Strategy
	maxFailures int
	healthEvery time.Duration
	logger      *logrus.Logger

	mu            sync.RWMutex
	rotationIndex int
	rng           *rand.Rand

	healthStop    chan struct{}
	healthRunning bool
}

func NewPool(endpoints []string, strategy Strategy, maxFailures int, healthEvery time.Duration, logger *logrus.Logger) (*Pool, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if maxFailures < 1 {
		maxFailures = 3
	}

	p := &Pool{
		benched:     make(map[string]time.Time),
		strategy:    strategy,
		maxFailures: maxFailures,
		healthEvery: healthEvery,
		logger:      logger,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		healthStop:  make(chan struct{}),
	}

	for _, endpoint := range endpoints {
		proxy, err := parseEndpoint(endpoint)
		if err != nil {
			return nil, err
		}
		p.proxies = append(p.proxies, proxy)
		p.active = append(p.active, proxy)
	}
	return p, nil
}

func parseEndpoint(endpoint string) (*Proxy, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("invalid proxy endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy endpoint %q: missing host", endpoint)
	}

	proxyType := strings.ToLower(u.Scheme)
	switch proxyType {
	case "http", "https", "socks5", "socks5h":
	case "":
		proxyType = "http"
		u.Scheme = "http"
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q in %s", u.Scheme, endpoint)
	}

	proxy := &Proxy{
		URL:         u,
		Type:        proxyType,
		SuccessRate: 1.0,
	}
	if u.User != nil {
		password, _ := u.User.Password()
		proxy.Credentials = &Auth{Username: u.User.Username(), Password: password}
	}
	return proxy, nil
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.proxies)
}

// Next picks a proxy per the configured strategy from the active set.
func (p *Pool) Next() (*Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.active) == 0 {
		return nil, fmt.Errorf("no active proxies available")
	}

	var proxy *Proxy
	switch p.strategy {
	case Random:
		proxy = p.active[p.rng.Intn(len(p.active))]
	case LatencyBased:
		for _, candidate := range p.active {
			if proxy == nil || candidate.Latency < proxy.Latency {
				proxy = candidate
			}
		}
	default:
		proxy = p.active[p.rotationIndex%len(p.active)]
		p.rotationIndex = (p.rotationIndex + 1) % len(p.active)
	}

	proxy.LastUsed = time.Now()
	return proxy, nil
}

// Configure wires the proxy into an HTTP transport. SOCKS endpoints get a
// custom dialer, HTTP endpoints use the standard CONNECT path.
func Configure(tr *http.Transport, proxy *Proxy) error {
	switch proxy.Type {
	case "socks5", "socks5h":
		var auth *xproxy.Auth
		if proxy.Credentials != nil {
			auth = &xproxy.Auth{User: proxy.Credentials.Username, Password: proxy.Credentials.Password}
		}
		dialer, err := xproxy.SOCKS5("tcp", proxy.URL.Host, auth, xproxy.Direct)
		if err != nil {
			return fmt.Errorf("socks dialer for %s: %w", proxy.URL.Host, err)
		}
		tr.DialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
			if cd, ok := dialer.(xproxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, address)
			}
			return dialer.Dial(network, address)
		}
	default:
		tr.Proxy = http.ProxyURL(proxy.URL)
		if proxy.Credentials != nil {
			if tr.ProxyConnectHeader == nil {
				tr.ProxyConnectHeader = http.Header{}
			}
			tr.ProxyConnectHeader.Set("Proxy-Authorization",
				"Basic "+basicAuth(proxy.Credentials.Username, proxy.Credentials.Password))
		}
	}
	return nil
}

func (p *Pool) MarkSuccess(proxyURL string, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, proxy := range p.proxies {
		if proxy.URL.String() == proxyURL {
			if proxy.Latency == 0 {
				proxy.Latency = latency
			} else {
				proxy.Latency = time.Duration(0.7*float64(proxy.Latency) + 0.3*float64(latency))
			}
			proxy.SuccessRate = 0.95*proxy.SuccessRate + 0.05
			proxy.FailureCount = 0
			delete(p.benched, proxyURL)
			break
		}
	}
}

func (p *Pool) MarkFailure(proxyURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, proxy := range p.proxies {
		if proxy.URL.String() == proxyURL {
			proxy.FailureCount++
			proxy.SuccessRate = 0.9 * proxy.SuccessRate

			if proxy.FailureCount >= p.maxFailures {
				p.benched[proxyURL] = time.Now()
				for i, active := range p.active {
					if active.URL.String() == proxyURL {
						p.active = append(p.active[:i], p.active[i+1:]...)
						break
					}
				}
				p.logger.Warnf("Benched proxy %s after %d failures", proxyURL, proxy.FailureCount)
			}
			break
		}
	}
}

// HealthCheck probes every known proxy and reconciles the active set.
func (p *Pool) HealthCheck(ctx context.Context) {
	p.mu.RLock()
	all := make([]*Proxy, len(p.proxies))
	copy(all, p.proxies)
	p.mu.RUnlock()

	for _, proxy := range all {
		healthy := p.isHealthy(ctx, proxy)

		p.mu.Lock()
		inActive := false
		for _, active := range p.active {
			if active.URL.String() == proxy.URL.String() {
				inActive = true
				break
			}
		}
		if healthy && !inActive {
			p.active = append(p.active, proxy)
			delete(p.benched, proxy.URL.String())
			proxy.FailureCount = 0
		}
		if !healthy && inActive {
			for i, active := range p.active {
				if active.URL.String() == proxy.URL.String() {
					p.active = append(p.active[:i], p.active[i+1:]...)
					break
				}
			}
			p.benched[proxy.URL.String()] = time.Now()
		}
		proxy.LastChecked = time.Now()
		p.mu.Unlock()
	}
}

func (p *Pool) isHealthy(ctx context.Context, proxy *Proxy) bool {
	transport := &http.Transport{}
	if err := Configure(transport, proxy); err != nil {
		p.logger.Debugf("Health check setup failed for %s: %v", proxy.URL.String(), err)
		return false
	}
	client := &http.Client{Transport: transport, Timeout: 10 * time.Second}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.gstatic.com/generate_204", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		p.logger.Debugf("Health check failed for %s: %v", proxy.URL.String(), err)
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

func (p *Pool) StartHealthChecks(ctx context.Context) {
	p.mu.Lock()
	if p.healthRunning || p.healthEvery <= 0 {
		p.mu.Unlock()
		return
	}
	p.healthRunning = true
	interval := p.healthEvery
	stop := p.healthStop
	p.mu.Unlock()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.HealthCheck(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Pool) StopHealthChecks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.healthRunning {
		return
	}
	p.healthRunning = false
	close(p.healthStop)
	p.healthStop = make(chan struct{})
}

func (p *Pool) GetStats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := map[string]interface{}{
		"total_proxies":  len(p.proxies),
		"active_proxies": len(p.active),
		"benched":        len(p.benched),
		"strategy":       p.strategy.String(),
	}

	var totalSuccessRate float64
	var totalLatency time.Duration
	for _, proxy := range p.proxies {
		totalSuccessRate += proxy.SuccessRate
		totalLatency += proxy.Latency
	}
	if n := len(p.proxies); n > 0 {
		stats["avg_success_rate"] = totalSuccessRate / float64(n)
		stats["avg_latency"] = (totalLatency / time.Duration(n)).String()
	}
	return stats
}

func basicAuth(username, password string) string {
	auth := username + ":" + password
	return base64.StdEncoding.EncodeToString([]byte(auth))
}
