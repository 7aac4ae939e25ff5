package dnsrotate

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/idna"
)

// Resolver answers host lookups through a rotating set of upstream DNS
// servers so probe traffic does not funnel every query through the system
// resolver. Answers are cached for their TTL, capped at five minutes.
type Resolver struct {
	servers   []string
	timeout   time.Duration
	udpClient *mdns.Client
	tcpClient *mdns.Client
	logger    *logrus.Logger

	mu          sync.RWMutex
	rotateIndex int

	cacheMu    sync.RWMutex
	cache      map[string]*cacheEntry
	defaultTTL time.Duration

	queries   int64
	cacheHits int64
}

type cacheEntry struct {
	ips        []string
	expiration time.Time
}

func NewResolver(servers []string, timeout time.Duration, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	if len(servers) == 0 {
		servers = systemResolvers()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	udp := &mdns.Client{
		Net:          "udp",
		Timeout:      timeout,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		UDPSize:      1232,
	}
	tcp := &mdns.Client{
		Net:          "tcp",
		Timeout:      timeout,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	return &Resolver{
		servers:    servers,
		timeout:    timeout,
		udpClient:  udp,
		tcpClient:  tcp,
		logger:     logger,
		cache:      make(map[string]*cacheEntry),
		defaultTTL: 5 * time.Minute,
	}
}

// LookupHost resolves a hostname to IP addresses, preferring A records and
// falling back to AAAA when no IPv4 answer exists.
func (r *Resolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	asciiHost, err := idna.ToASCII(strings.TrimSpace(host))
	if err != nil || asciiHost == "" {
		return nil, fmt.Errorf("invalid host %q: %w", host, err)
	}
	asciiHost = strings.ToLower(asciiHost)

	if ip := net.ParseIP(asciiHost); ip != nil {
		return []string{asciiHost}, nil
	}

	r.cacheMu.RLock()
	entry, ok := r.cache[asciiHost]
	r.cacheMu.RUnlock()
	if ok && time.Now().Before(entry.expiration) {
		r.mu.Lock()
		r.cacheHits++
		r.mu.Unlock()
		out := make([]string, len(entry.ips))
		copy(out, entry.ips)
		return out, nil
	}

	ips, minTTL, err := r.query(ctx, asciiHost, mdns.TypeA)
	if err != nil || len(ips) == 0 {
		var v6Err error
		ips, minTTL, v6Err = r.query(ctx, asciiHost, mdns.TypeAAAA)
		if v6Err != nil || len(ips) == 0 {
			if err == nil {
				err = v6Err
			}
			if err == nil {
				err = fmt.Errorf("no addresses for %s", asciiHost)
			}
			return nil, err
		}
	}

	ttl := r.defaultTTL
	if minTTL > 0 {
		if d := time.Duration(minTTL) * time.Second; d < ttl {
			ttl = d
		}
	}
	r.cacheMu.Lock()
	r.cache[asciiHost] = &cacheEntry{
		ips:        append([]string(nil), ips...),
		expiration: time.Now().Add(ttl),
	}
	r.cacheMu.Unlock()

	return ips, nil
}

func (r *Resolver) query(ctx context.Context, host string, qtype uint16) ([]string, uint32, error) {
	r.mu.Lock()
	r.queries++
	r.mu.Unlock()

	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(host), qtype)
	msg.RecursionDesired = true
	msg.SetEdns0(1232, true)

	server := r.selectServer()
	resp, _, err := r.udpClient.ExchangeContext(ctx, msg, server)
	if err != nil || resp == nil || resp.Truncated {
		resp, _, err = r.tcpClient.ExchangeContext(ctx, msg, server)
		if err != nil {
			return nil, 0, fmt.Errorf("dns query via %s failed: %w", server, err)
		}
		if resp == nil {
			return nil, 0, fmt.Errorf("nil dns response from %s", server)
		}
	}
	if resp.Rcode != mdns.RcodeSuccess {
		return nil, 0, fmt.Errorf("dns error from %s: %s", server, mdns.RcodeToString[resp.Rcode])
	}

	var ips []string
	var minTTL uint32
	for _, rr := range resp.Answer {
		var ip string
		switch rec := rr.(type) {
		case *mdns.A:
			ip = rec.A.String()
		case *mdns.AAAA:
			ip = rec.AAAA.String()
		default:
			continue
		}
		ips = append(ips, ip)
		if ttl := rr.Header().Ttl; minTTL == 0 || ttl < minTTL {
			minTTL = ttl
		}
	}
	return ips, minTTL, nil
}

// DialContext wraps a base dialer so connections resolve the target host
// through the rotating resolver and then dial candidate IPs in order.
func (r *Resolver) DialContext(base *net.Dialer) func(ctx context.Context, network, address string) (net.Conn, error) {
	if base == nil {
		base = &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	}
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return base.DialContext(ctx, network, address)
		}
		if net.ParseIP(host) != nil {
			return base.DialContext(ctx, network, address)
		}

		ips, err := r.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}

		var lastErr error
		for _, ip := range ips {
			conn, err := base.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, fmt.Errorf("dial %s: %w", address, lastErr)
	}
}

func (r *Resolver) selectServer() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.servers) == 0 {
		r.servers = systemResolvers()
	}
	server := r.servers[r.rotateIndex%len(r.servers)]
	r.rotateIndex = (r.rotateIndex + 1) % len(r.servers)

	if !strings.Contains(server, ":") {
		server = net.JoinHostPort(server, "53")
	}
	return server
}

func (r *Resolver) SetServers(servers []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = servers
	r.rotateIndex = 0
}

func (r *Resolver) Servers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make([]string, len(r.servers))
	copy(cp, r.servers)
	return cp
}

func (r *Resolver) ClearCache() {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.cache = make(map[string]*cacheEntry)
}

func (r *Resolver) GetStats() map[string]interface{} {
	r.mu.RLock()
	queries := r.queries
	hits := r.cacheHits
	servers := len(r.servers)
	r.mu.RUnlock()

	r.cacheMu.RLock()
	cached := len(r.cache)
	r.cacheMu.RUnlock()

	return map[string]interface{}{
		"servers":        servers,
		"queries":        queries,
		"cache_hits":     hits,
		"cached_entries": cached,
	}
}

func systemResolvers() []string {
	cfg, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || cfg == nil || len(cfg.Servers) == 0 {
		return []string{
			"8.8.8.8:53",
			"1.1.1.1:53",
			"9.9.9.9:53",
		}
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(s, "53"))
	}
	return servers
}
