package probing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/idna"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bl4ck0w1/profilynx/internal/catalog"
	"github.com/bl4ck0w1/profilynx/internal/evasion"
	"github.com/bl4ck0w1/profilynx/pkg/models"
	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

// Response bodies past this size carry no detection signal worth reading.
const maxBodyBytes = 512 * 1024

// Engine issues classified probes against catalog platforms. A single
// weighted semaphore caps in-flight requests across every scan in the
// process, so a burst of queued scans cannot stampede one target.
type Engine struct {
	catalog    *catalog.Catalog
	cfg        *models.ProbeConfig
	suite      *evasion.Suite
	factory    *ClientFactory
	classifier *Classifier
	backoff    *BackoffPolicy
	sem        *semaphore.Weighted
	metrics    *utils.MetricsCollector
	logger     *logrus.Logger
}

func NewEngine(cat *catalog.Catalog, cfg *models.ProbeConfig, suite *evasion.Suite, metrics *utils.MetricsCollector, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	if metrics == nil {
		metrics = utils.DefaultMetricsCollector()
	}

	limit := cfg.MaxConcurrentRequests
	if limit < 1 {
		limit = 1
	}

	return &Engine{
		catalog:    cat,
		cfg:        cfg,
		suite:      suite,
		factory:    NewClientFactory(cfg, suite, logger),
		classifier: NewClassifier(logger),
		backoff:    NewBackoffPolicy(cfg.RetryAttempts, cfg.RetryBackoffBase, cfg.RetryBackoffMax, logger),
		sem:        semaphore.NewWeighted(int64(limit)),
		metrics:    metrics,
		logger:     logger,
	}
}

// Probe checks one platform for one username. It always returns a result;
// failures of any kind end up in the result's status and error fields.
func (e *Engine) Probe(ctx context.Context, def models.PlatformDefinition, username string) *models.PlatformResult {
	result := &models.PlatformResult{
		Platform:     def.ID,
		PlatformName: def.Name,
		Status:       models.StatusPending,
		Timestamp:    time.Now(),
	}

	targetURL, err := BuildTargetURL(def.URLTemplate, username)
	if err != nil {
		result.Status = models.StatusError
		result.Error = err.Error()
		e.metrics.RecordProbe(string(result.Status), def.ID, 0)
		return result
	}
	result.URL = targetURL

	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.finishWithFailure(result, err)
		return result
	}
	defer e.sem.Release(1)

	e.metrics.ProbeStarted()
	defer e.metrics.ProbeFinished()

	if err := e.suite.Pace(ctx); err != nil {
		e.finishWithFailure(result, err)
		return result
	}

	start := time.Now()
	verdict, outcome := e.execute(ctx, &def, username, targetURL)
	result.ResponseTime = time.Since(start)

	result.Status = verdict.Status
	result.Found = verdict.Found
	result.Indicators = verdict.Indicators
	result.Error = verdict.Detail
	result.Confidence = verdict.Confidence
	result.HTTPStatus = outcome.statusCode
	result.Headers = outcome.headers
	result.ContentLength = outcome.contentLength
	result.ContentPreview = outcome.preview
	result.Attempts = outcome.attempts

	e.metrics.RecordProbe(string(result.Status), def.ID, result.ResponseTime)
	e.logger.WithFields(logrus.Fields{
		"platform": def.ID,
		"status":   result.Status,
		"attempts": result.Attempts,
	}).Debug("Probe settled")
	return result
}

type attemptOutcome struct {
	statusCode    int
	headers       map[string]string
	contentLength int64
	preview       string
	attempts      int
}

func (e *Engine) execute(ctx context.Context, def *models.PlatformDefinition, username, targetURL string) (Verdict, attemptOutcome) {
	var outcome attemptOutcome

	maxAttempts := e.backoff.MaxRetries() + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.attempts = attempt

		statusCode, headers, body, err := e.request(ctx, targetURL)
		if err != nil {
			e.suite.Observe(false)
			if attempt < maxAttempts && e.backoff.Retryable(0, err) {
				e.metrics.RecordProbeRetry(def.ID)
				if waitErr := e.backoff.Wait(ctx, attempt); waitErr != nil {
					return e.classifier.ClassifyFailure(err), outcome
				}
				continue
			}
			return e.classifier.ClassifyFailure(err), outcome
		}

		outcome.statusCode = statusCode
		outcome.headers = headers
		outcome.contentLength = int64(len(body))
		outcome.preview = utils.Truncate(string(body), e.previewBytes())

		if attempt < maxAttempts && e.backoff.Retryable(statusCode, nil) {
			e.suite.Observe(false)
			e.metrics.RecordProbeRetry(def.ID)
			if waitErr := e.backoff.Wait(ctx, attempt); waitErr != nil {
				verdict := e.classifier.Classify(def, username, statusCode, body)
				return verdict, outcome
			}
			continue
		}

		verdict := e.classifier.Classify(def, username, statusCode, body)
		e.suite.Observe(verdict.Status != models.StatusBlocked)
		return verdict, outcome
	}

	return Verdict{Status: models.StatusError, Detail: "no probe attempt completed"}, outcome
}

func (e *Engine) request(ctx context.Context, targetURL string) (int, map[string]string, []byte, error) {
	client, proxy, err := e.factory.Pick()
	if err != nil {
		return 0, nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("build request: %w", err)
	}

	profile := e.suite.Identity.Next()
	e.suite.Identity.Apply(req, profile)

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if proxy != nil {
			e.suite.Proxies.MarkFailure(proxy.URL.String())
		}
		if profile != nil {
			e.suite.Identity.MarkResult(profile.Name, false)
		}
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	if proxy != nil {
		e.suite.Proxies.MarkSuccess(proxy.URL.String(), latency)
	}
	if profile != nil {
		e.suite.Identity.MarkResult(profile.Name, resp.StatusCode < 400)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, nil, fmt.Errorf("read response: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	return resp.StatusCode, headers, body, nil
}

// ScanPlatforms probes every requested platform (all, when ids is empty)
// concurrently under the shared admission cap and returns results in catalog
// order regardless of completion order.
func (e *Engine) ScanPlatforms(ctx context.Context, username string, ids []string) ([]*models.PlatformResult, error) {
	defs, err := e.catalog.Select(ids)
	if err != nil {
		return nil, err
	}

	results := make([]*models.PlatformResult, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			results[i] = e.Probe(gctx, def, username)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (e *Engine) finishWithFailure(result *models.PlatformResult, err error) {
	verdict := e.classifier.ClassifyFailure(err)
	result.Status = verdict.Status
	result.Error = verdict.Detail
	e.metrics.RecordProbe(string(result.Status), result.Platform, 0)
}

func (e *Engine) previewBytes() int {
	if e.cfg.PreviewBytes > 0 {
		return e.cfg.PreviewBytes
	}
	return 256
}

func (e *Engine) Classifier() *Classifier { return e.classifier }

func (e *Engine) Close() {
	e.factory.CloseIdle()
}

func (e *Engine) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"max_concurrent": e.cfg.MaxConcurrentRequests,
		"retry_attempts": e.cfg.RetryAttempts,
		"timeout":        e.cfg.Timeout.String(),
		"transport":      e.factory.GetStats(),
		"classifier":     e.classifier.GetStats(),
		"evasion":        e.suite.GetStats(),
	}
}

// BuildTargetURL substitutes the username into a platform URL template. The
// placeholder may sit in the hostname (profile subdomains) or in the path.
func BuildTargetURL(template, username string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("%w: empty username", models.ErrInvalidInput)
	}
	if !strings.Contains(template, "{username}") {
		return "", fmt.Errorf("url template missing username placeholder: %s", template)
	}

	schemeIdx := strings.Index(template, "://")
	if schemeIdx < 0 {
		return "", fmt.Errorf("url template missing scheme: %s", template)
	}
	rest := template[schemeIdx+3:]
	hostEnd := strings.IndexByte(rest, '/')
	hostPart := rest
	pathPart := ""
	if hostEnd >= 0 {
		hostPart = rest[:hostEnd]
		pathPart = rest[hostEnd:]
	}

	if strings.Contains(hostPart, "{username}") {
		rawHost := strings.ReplaceAll(hostPart, "{username}", username)
		asciiHost, err := idna.ToASCII(rawHost)
		if err != nil {
			return "", fmt.Errorf("%w: username %q does not form a valid host", models.ErrInvalidInput, username)
		}
		pathPart = strings.ReplaceAll(pathPart, "{username}", url.PathEscape(username))
		return template[:schemeIdx+3] + asciiHost + pathPart, nil
	}

	return strings.ReplaceAll(template, "{username}", url.PathEscape(username)), nil
}
