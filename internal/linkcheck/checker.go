package linkcheck

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

	"github.com/david/grantmate/internal/metrics"
)

var (
	ErrUnsupportedScheme = errors.New("only http and https links can be checked")
	ErrForbiddenHost     = errors.New("internal network access forbidden")
)

// Link status values stored on saved grants.
const (
	StatusOK          = "ok"
	StatusBroken      = "broken"
	StatusUnreachable = "unreachable"
	StatusInvalid     = "invalid"
)

type Result struct {
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	OK         bool      `json:"ok"`
	PageTitle  string    `json:"page_title,omitempty"`
	Err        string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Status folds the result into one of the stored link status values.
func (r Result) Status() string {
	switch {
	case r.OK:
		return StatusOK
	case r.StatusCode > 0:
		return StatusBroken
	case r.Err != "" && (strings.Contains(r.Err, ErrUnsupportedScheme.Error()) || strings.Contains(r.Err, ErrForbiddenHost.Error())):
		return StatusInvalid
	default:
		return StatusUnreachable
	}
}

// HostGuard decides whether a host may be fetched.
type HostGuard func(ctx context.Context, host string) error

type Checker struct {
	UserAgent      string
	RequestTimeout time.Duration
	MaxBodySize    int

	guard  HostGuard
	logger *zap.Logger
}

type Option func(*Checker)

func WithLogger(l *zap.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Checker) { c.RequestTimeout = d }
}

// WithHostGuard replaces the default public-address check.
func WithHostGuard(g HostGuard) Option {
	return func(c *Checker) { c.guard = g }
}

func New(opts ...Option) *Checker {
	c := &Checker{
		UserAgent:      "Mozilla/5.0 (compatible; grantmate-linkcheck/1.0)",
		RequestTimeout: 15 * time.Second,
		MaxBodySize:    2 * 1024 * 1024,
		guard:          PublicHostsOnly,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PublicHostsOnly resolves host and rejects it if any address is private,
// loopback or otherwise special.
func PublicHostsOnly(ctx context.Context, host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateOrSpecialIP(ip) {
			return ErrForbiddenHost
		}
		return nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%s resolved to no addresses", host)
	}
	for _, a := range addrs {
		if IsPrivateOrSpecialIP(a.IP) {
			return ErrForbiddenHost
		}
	}
	return nil
}

func IsPrivateOrSpecialIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		// carrier-grade NAT
		if ip4[0] == 100 && ip4[1]&0xC0 == 64 {
			return true
		}
		if ip4[0] == 169 && ip4[1] == 254 {
			return true
		}
	}
	return false
}

// Validate parses raw and applies the scheme and host checks.
func (c *Checker) Validate(ctx context.Context, raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrUnsupportedScheme
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid URL: missing host")
	}
	if err := c.guard(ctx, u.Hostname()); err != nil {
		return nil, err
	}
	return u, nil
}

func (c *Checker) buildCollector(ctx context.Context) *colly.Collector {
	col := colly.NewCollector(
		colly.UserAgent(c.UserAgent),
		colly.MaxBodySize(c.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.StdlibContext(ctx),
	)
	col.SetRequestTimeout(c.RequestTimeout)
	col.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return c.guard(req.Context(), req.URL.Hostname())
	})
	return col
}

// Check fetches raw once and reports whether it answers with a 2xx page.
func (c *Checker) Check(ctx context.Context, raw string) Result {
	res := Result{URL: raw, CheckedAt: time.Now().UTC()}
	defer func() {
		metrics.LinkChecks.WithLabelValues(res.Status()).Inc()
	}()

	u, err := c.Validate(ctx, raw)
	if err != nil {
		res.Err = err.Error()
		return res
	}

	col := c.buildCollector(ctx)
	col.OnResponse(func(r *colly.Response) {
		res.StatusCode = r.StatusCode
		res.OK = r.StatusCode >= 200 && r.StatusCode < 300
	})
	col.OnHTML("head > title", func(e *colly.HTMLElement) {
		if res.PageTitle == "" {
			res.PageTitle = strings.Join(strings.Fields(e.Text), " ")
		}
	})
	col.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			res.StatusCode = r.StatusCode
		}
		res.Err = err.Error()
	})

	if err := col.Visit(u.String()); err != nil && res.Err == "" {
		res.Err = err.Error()
	}
	if res.OK {
		res.Err = ""
	}

	c.logger.Debug("link checked",
		zap.String("url", raw),
		zap.Int("status_code", res.StatusCode),
		zap.String("status", res.Status()),
	)
	return res
}
