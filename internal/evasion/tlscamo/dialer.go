package tlscamo

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"github.com/sirupsen/logrus"
)

// Dialer establishes TLS sessions whose ClientHello matches a real browser
// instead of the Go runtime's. It plugs into http.Transport.DialTLSContext.
type Dialer struct {
	fingerprints map[string]utls.ClientHelloID
	profile      string
	verifyTLS    bool
	baseDial     func(ctx context.Context, network, address string) (net.Conn, error)
	logger       *logrus.Logger
	mu           sync.RWMutex

	handshakes int64
	failures   int64
}

func NewDialer(profile string, verifyTLS bool, logger *logrus.Logger) (*Dialer, error) {
	if logger == nil {
		logger = logrus.New()
	}

	d := &Dialer{
		fingerprints: map[string]utls.ClientHelloID{
			"chrome":  utls.HelloChrome_Auto,
			"firefox": utls.HelloFirefox_Auto,
			"safari":  utls.HelloSafari_Auto,
			"edge":    utls.HelloEdge_Auto,
			"android": utls.HelloAndroid_11_OkHttp,
			"ios":     utls.HelloIOS_Auto,
			"golang":  utls.HelloGolang,
			"random":  utls.HelloRandomized,
		},
		profile:   profile,
		verifyTLS: verifyTLS,
		logger:    logger,
	}

	if _, ok := d.fingerprints[profile]; !ok {
		return nil, fmt.Errorf("unknown tls profile: %s", profile)
	}
	return d, nil
}

// SetBaseDial replaces the raw TCP dial used underneath the handshake,
// letting the rotating DNS resolver feed this dialer.
func (d *Dialer) SetBaseDial(dial func(ctx context.Context, network, address string) (net.Conn, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseDial = dial
}

func (d *Dialer) Fingerprint(name string) (utls.ClientHelloID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if fp, ok := d.fingerprints[name]; ok {
		return fp, nil
	}
	return utls.ClientHelloID{}, fmt.Errorf("unknown tls profile: %s", name)
}

func (d *Dialer) RandomFingerprint() utls.ClientHelloID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	values := make([]utls.ClientHelloID, 0, len(d.fingerprints))
	for _, v := range d.fingerprints {
		values = append(values, v)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(values))))
	if err != nil {
		return utls.HelloGolang
	}
	return values[n.Int64()]
}

// DialTLSContext dials the address and completes a camouflaged handshake.
// ALPN is pinned to HTTP/1.1 because the owning transport speaks HTTP/1.1
// over connections it did not negotiate itself.
func (d *Dialer) DialTLSContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}

	fp, err := d.Fingerprint(d.currentProfile())
	if err != nil {
		return nil, err
	}

	rawConn, err := d.dialRaw(ctx, network, address)
	if err != nil {
		return nil, err
	}

	cfg := &utls.Config{
		ServerName:         host,
		InsecureSkipVerify: !d.verifyTLS,
		NextProtos:         []string{"http/1.1"},
	}

	uconn := utls.UClient(rawConn, cfg, fp)
	if err := uconn.BuildHandshakeState(); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("build hello for %s: %w", host, err)
	}
	for _, ext := range uconn.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = uconn.SetDeadline(deadline)
	}
	if err := uconn.Handshake(); err != nil {
		_ = rawConn.Close()
		d.mu.Lock()
		d.failures++
		d.mu.Unlock()
		return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
	}
	_ = uconn.SetDeadline(time.Time{})

	d.mu.Lock()
	d.handshakes++
	d.mu.Unlock()
	return uconn, nil
}

func (d *Dialer) dialRaw(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.RLock()
	dial := d.baseDial
	d.mu.RUnlock()

	if dial != nil {
		return dial(ctx, network, address)
	}
	base := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return base.DialContext(ctx, network, address)
}

func (d *Dialer) currentProfile() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.profile
}

func (d *Dialer) SetProfile(profile string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fingerprints[profile]; !ok {
		return fmt.Errorf("unknown tls profile: %s", profile)
	}
	d.profile = profile
	return nil
}

func (d *Dialer) ProfileNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.fingerprints))
	for name := range d.fingerprints {
		names = append(names, name)
	}
	return names
}

func (d *Dialer) GetStats() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return map[string]interface{}{
		"profile":    d.profile,
		"verify_tls": d.verifyTLS,
		"handshakes": d.handshakes,
		"failures":   d.failures,
	}
}
