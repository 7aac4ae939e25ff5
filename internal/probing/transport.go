package probing

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/profilynx/internal/evasion"
	"github.com/bl4ck0w1/profilynx/internal/evasion/proxies"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

// ClientFactory owns the HTTP clients probes run on. One pooled client
// serves direct traffic; when a proxy pool is configured each proxy gets its
// own cached client so rotation does not defeat connection reuse.
type ClientFactory struct {
	cfg    *models.ProbeConfig
	suite  *evasion.Suite
	logger *logrus.Logger

	mu       sync.Mutex
	direct   *http.Client
	perProxy map[string]*http.Client
}

func NewClientFactory(cfg *models.ProbeConfig, suite *evasion.Suite, logger *logrus.Logger) *ClientFactory {
	if logger == nil {
		logger = logrus.New()
	}
	return &ClientFactory{
		cfg:      cfg,
		suite:    suite,
		logger:   logger,
		perProxy: make(map[string]*http.Client),
	}
}

// Pick returns the client for the next probe plus the proxy it egresses
// through, nil when direct.
func (f *ClientFactory) Pick() (*http.Client, *proxies.Proxy, error) {
	if f.suite == nil || f.suite.Proxies == nil {
		client, err := f.directClient()
		return client, nil, err
	}

	proxy, err := f.suite.Proxies.Next()
	if err != nil {
		// Every proxy benched; probing direct beats not probing at all.
		f.logger.Warnf("Proxy pool exhausted, falling back to direct: %v", err)
		client, derr := f.directClient()
		return client, nil, derr
	}

	client, err := f.proxyClient(proxy)
	if err != nil {
		return nil, nil, err
	}
	return client, proxy, nil
}

func (f *ClientFactory) directClient() (*http.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.direct != nil {
		return f.direct, nil
	}
	transport, err := f.buildTransport(nil)
	if err != nil {
		return nil, err
	}
	f.direct = f.buildClient(transport)
	return f.direct, nil
}

func (f *ClientFactory) proxyClient(proxy *proxies.Proxy) (*http.Client, error) {
	key := proxy.URL.String()

	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.perProxy[key]; ok {
		return client, nil
	}

	transport, err := f.buildTransport(proxy)
	if err != nil {
		return nil, err
	}
	client := f.buildClient(transport)
	f.perProxy[key] = client
	return client, nil
}

func (f *ClientFactory) buildTransport(proxy *proxies.Proxy) (*http.Transport, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !f.cfg.VerifyTLS,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
		CurvePreferences: []tls.CurveID{
			tls.X25519, tls.CurveP256, tls.CurveP384, tls.CurveP521,
		},
		NextProtos: []string{"h2", "http/1.1"},
	}

	transport := &http.Transport{
		TLSClientConfig:       tlsConfig,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	if f.suite != nil && f.suite.Resolver != nil {
		transport.DialContext = f.suite.Resolver.DialContext(&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		})
	}

	if proxy != nil {
		if err := proxies.Configure(transport, proxy); err != nil {
			return nil, fmt.Errorf("configure proxy transport: %w", err)
		}
	} else if f.suite != nil && f.suite.TLS != nil {
		// Camouflaged handshakes speak HTTP/1.1 only; see tlscamo.
		transport.DialTLSContext = f.suite.TLS.DialTLSContext
		transport.ForceAttemptHTTP2 = false
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	return transport, nil
}

func (f *ClientFactory) buildClient(transport *http.Transport) *http.Client {
	client := &http.Client{
		Transport: transport,
		Timeout:   f.cfg.Timeout,
	}

	if !f.cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
		return client
	}

	maxRedirects := f.cfg.MaxRedirects
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	return client
}

// CloseIdle drops pooled connections on every cached client.
func (f *ClientFactory) CloseIdle() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.direct != nil {
		f.direct.CloseIdleConnections()
	}
	for _, client := range f.perProxy {
		client.CloseIdleConnections()
	}
}

func (f *ClientFactory) GetStats() map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]interface{}{
		"direct_client":    f.direct != nil,
		"proxy_clients":    len(f.perProxy),
		"follow_redirects": f.cfg.FollowRedirects,
	}
}
