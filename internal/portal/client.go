package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/usn-result-scraper/internal/metrics"
	"github.com/JakeFAU/usn-result-scraper/internal/pdftext"
	"github.com/JakeFAU/usn-result-scraper/internal/usn"
)

// Defaults for the DSCE result-sheet report.
const (
	DefaultReport    = "mydsi/exam/Exam_Result_Sheet_dsce.rptdesign"
	DefaultFormat    = "pdf"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxBodyBytes = 20 * 1024 * 1024
)

var (
	// ErrMissingURL is returned when the portal endpoint is not configured.
	ErrMissingURL = errors.New("portal url is required")
	// ErrInvalidUSN is returned by Fetch for identifiers that cannot be parsed.
	ErrInvalidUSN = errors.New("invalid usn")
)

// TextExtractor pulls plain text out of a PDF document.
type TextExtractor interface {
	ExtractText(data []byte) (string, error)
}

// Config controls the portal client.
type Config struct {
	URL            string
	Report         string
	Format         string
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	MaxRPS         float64
	USNPrefix      string
}

// Client fetches and classifies result sheets. It is safe for concurrent use.
type Client struct {
	cfg       Config
	endpoint  *url.URL
	base      *colly.Collector
	extractor TextExtractor
	retry     retryPolicy
	limiter   *requestLimiter
	logger    *zap.Logger
}

type response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// New builds a Client. A nil extractor falls back to pdftext.
func New(cfg Config, extractor TextExtractor, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrMissingURL
	}
	endpoint, err := url.Parse(cfg.URL)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("parse portal url %q: invalid absolute url", cfg.URL)
	}
	if cfg.Report == "" {
		cfg.Report = DefaultReport
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.USNPrefix == "" {
		cfg.USNPrefix = usn.DefaultPrefix
	}
	if extractor == nil {
		extractor = pdftext.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Client{
		cfg:       cfg,
		endpoint:  endpoint,
		base:      c,
		extractor: extractor,
		retry:     newRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax),
		limiter:   newRequestLimiter(cfg.MaxRPS),
		logger:    logger,
	}, nil
}

// Fetch requests the result sheet for one USN. The identifier is sent as given,
// trimmed and upper-cased; parsing only tags the result with its branch and year.
// Network errors and 5xx responses are
// retried a bounded number of times and then reported as KindTransient. The returned
// error is non-nil only for malformed identifiers or a finished context.
func (c *Client) Fetch(ctx context.Context, raw string) (Outcome, error) {
	requested := strings.ToUpper(strings.TrimSpace(raw))
	id, err := usn.Parse(requested, c.cfg.USNPrefix)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidUSN, err)
	}
	target := c.requestURL(requested)

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return Outcome{}, fmt.Errorf("fetch %s: %w", requested, err)
		}
		start := time.Now()
		resp, err := c.get(ctx, target)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			out := c.classify(requested, id, resp, attempt)
			metrics.ObservePortalRequest(out.Kind.String(), time.Since(start))
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, fmt.Errorf("fetch %s: %w", requested, ctxErr)
		}
		if err == nil {
			err = fmt.Errorf("portal returned status %d", resp.StatusCode)
		}
		metrics.ObservePortalRequest(KindTransient.String(), time.Since(start))

		if !c.retry.shouldRetry(ctx, err, attempt) {
			c.logger.Warn("portal request failed",
				zap.String("usn", requested),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return Outcome{Kind: KindTransient, Reason: err.Error(), Attempts: attempt}, nil
		}
		metrics.ObservePortalRetry()
		c.logger.Debug("retrying portal request", zap.String("usn", requested), zap.Int("attempt", attempt), zap.Error(err))
		if err := sleepCtx(ctx, c.retry.backoff(attempt)); err != nil {
			return Outcome{}, fmt.Errorf("fetch %s: %w", requested, err)
		}
	}
}

func (c *Client) requestURL(id string) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("__report", c.cfg.Report)
	q.Set("__format", c.cfg.Format)
	q.Set("USN", id)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) classify(requested string, id usn.ID, resp response, attempt int) Outcome {
	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("no result sheet", zap.String("usn", requested), zap.Int("status", resp.StatusCode))
		return notFound(fmt.Sprintf("status %d", resp.StatusCode), attempt)
	}
	contentType := strings.ToLower(resp.Headers.Get("Content-Type"))
	if !strings.Contains(contentType, "application/pdf") {
		reason := "content type " + contentType
		if strings.Contains(contentType, "html") {
			if summary := pageSummary(resp.Body); summary != "" {
				reason += ": " + summary
			}
		}
		c.logger.Debug("response is not a pdf", zap.String("usn", requested), zap.String("reason", reason))
		return notFound(reason, attempt)
	}
	text, err := c.extractor.ExtractText(resp.Body)
	if err != nil {
		c.logger.Warn("pdf text extraction failed", zap.String("usn", requested), zap.Error(err))
		return notFound("text extraction failed", attempt)
	}
	name, ok := pdftext.ExtractStudentName(text)
	if !ok {
		c.logger.Debug("no student name in pdf", zap.String("usn", requested))
		return notFound("student name not found", attempt)
	}
	return Outcome{
		Kind:     KindFound,
		Attempts: attempt,
		Result: Result{
			USN:    requested,
			Name:   name,
			Branch: id.Branch,
			Year:   id.Year,
			PDF:    resp.Body,
		},
	}
}

func (c *Client) get(ctx context.Context, target string) (response, error) {
	collector := c.base.Clone()
	collector.UserAgent = c.cfg.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = maxBodyBytes
	collector.Context = ctx

	var (
		result   response
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		result = response{
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return response{}, fmt.Errorf("portal request canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return response{}, fmt.Errorf("portal visit: %w", err)
		}
		if fetchErr != nil {
			return response{}, fmt.Errorf("portal response: %w", fetchErr)
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
