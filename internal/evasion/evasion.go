package evasion

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/bl4ck0w1/profilynx/internal/evasion/dnsrotate"
	"github.com/bl4ck0w1/profilynx/internal/evasion/identity"
	"github.com/bl4ck0w1/profilynx/internal/evasion/proxies"
	"github.com/bl4ck0w1/profilynx/internal/evasion/timing"
	"github.com/bl4ck0w1/profilynx/internal/evasion/tlscamo"
	"github.com/bl4ck0w1/profilynx/pkg/models"
)

// Suite bundles every evasion component the probe engine needs, built once
// from configuration. Optional pieces stay nil when disabled.
type Suite struct {
	Identity *identity.Rotator
	Proxies  *proxies.Pool
	Resolver *dnsrotate.Resolver
	TLS      *tlscamo.Dialer
	Delayer  *timing.RandomDelayer
	Limiter  *timing.RateLimiter

	jitterMin time.Duration
	jitterMax time.Duration
	logger    *logrus.Logger
}

func NewSuite(cfg *models.ProbeConfig, logger *logrus.Logger) (*Suite, error) {
	if logger == nil {
		logger = logrus.New()
	}

	s := &Suite{logger: logger}

	rotator, err := identity.NewRotator(
		cfg.Identity.Profiles,
		cfg.Identity.RotateUserAgents,
		cfg.Identity.SpoofForwardedFor,
		logger,
	)
	if err != nil {
		return nil, err
	}
	s.Identity = rotator

	if cfg.Proxies.Enabled && len(cfg.Proxies.Endpoints) > 0 {
		strategy, err := proxies.ParseStrategy(cfg.Proxies.Strategy)
		if err != nil {
			return nil, err
		}
		pool, err := proxies.NewPool(
			cfg.Proxies.Endpoints,
			strategy,
			cfg.Proxies.MaxFailures,
			cfg.Proxies.HealthCheckInterval,
			logger,
		)
		if err != nil {
			return nil, err
		}
		s.Proxies = pool
	}

	if cfg.DNS.Rotate {
		s.Resolver = dnsrotate.NewResolver(cfg.DNS.Servers, cfg.DNS.Timeout, logger)
	}

	if cfg.TLS.Camouflage {
		dialer, err := tlscamo.NewDialer(cfg.TLS.Profile, cfg.VerifyTLS, logger)
		if err != nil {
			return nil, err
		}
		if s.Resolver != nil {
			dialer.SetBaseDial(s.Resolver.DialContext(&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}))
		}
		s.TLS = dialer
	}

	s.jitterMin = cfg.Timing.JitterMin
	s.jitterMax = cfg.Timing.JitterMax
	s.Delayer = timing.NewRandomDelayer(cfg.Timing.JitterMin, cfg.Timing.JitterMax, 0.1, logger)
	if cfg.Timing.RateLimit > 0 {
		s.Limiter = timing.NewRateLimiter(
			rate.Limit(cfg.Timing.RateLimit),
			cfg.Timing.RateBurst,
			cfg.Timing.Adaptive,
			logger,
		)
	}

	return s, nil
}

// Pace blocks until the next request may proceed, honoring both the token
// bucket and the jitter window.
func (s *Suite) Pace(ctx context.Context) error {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return s.Delayer.DelayCtx(ctx)
}

// Observe feeds a probe outcome back into the adaptive components.
func (s *Suite) Observe(success bool) {
	if s.Limiter == nil {
		return
	}
	if success {
		s.Limiter.RecordSuccess()
	} else {
		s.Limiter.RecordFailure()
	}
	s.Delayer.AdaptiveDelay(s.Limiter.SuccessRate(), s.jitterMin, s.jitterMax)
}

func (s *Suite) StartBackground(ctx context.Context) {
	if s.Proxies != nil {
		s.Proxies.StartHealthChecks(ctx)
	}
}

func (s *Suite) Close() {
	if s.Proxies != nil {
		s.Proxies.StopHealthChecks()
	}
	if s.Limiter != nil {
		s.Limiter.Close()
	}
}

func (s *Suite) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"identity": s.Identity.GetStats(),
		"timing":   s.Delayer.GetStats(),
	}
	if s.Limiter != nil {
		stats["rate_limiter"] = s.Limiter.GetStats()
	}
	if s.Proxies != nil {
		stats["proxies"] = s.Proxies.GetStats()
	}
	if s.Resolver != nil {
		stats["dns"] = s.Resolver.GetStats()
	}
	if s.TLS != nil {
		stats["tls"] = s.TLS.GetStats()
	}
	return stats
}
