package client

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Credentials controls whether cookies travel with requests.
type Credentials string

const (
	// CredentialsOmit never sends or stores cookies.
	CredentialsOmit Credentials = "omit"
	// CredentialsSameOrigin keeps cookies only for the base URL's origin.
	CredentialsSameOrigin Credentials = "same-origin"
	// CredentialsInclude keeps cookies for every host.
	CredentialsInclude Credentials = "include"
)

// RetryPolicy retries failed requests with exponential backoff: the n-th
// retry waits Delay * 2^(n-1).
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy is used when a Config has no Retry.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Delay: time.Second}

// Config holds configuration for the HTTP client. Per-request configs are
// merged over the client's: non-zero fields win and headers are combined.
type Config struct {
	// BaseURL is prefixed to relative request URLs, e.g. "http://localhost:8080".
	BaseURL string
	// Timeout bounds each attempt. Zero means no timeout.
	Timeout time.Duration
	// Credentials defaults to CredentialsSameOrigin.
	Credentials Credentials
	// Retry defaults to DefaultRetryPolicy. Use &RetryPolicy{} to disable retries.
	Retry *RetryPolicy
	// Headers are added to every request.
	Headers map[string]string
	// HTTPClient is optional; defaults to http.DefaultClient. Its Jar is
	// replaced according to Credentials.
	HTTPClient *http.Client
}

func (c Config) merge(override *Config) Config {
	if override == nil {
		return c
	}
	out := c
	if override.BaseURL != "" {
		out.BaseURL = override.BaseURL
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.Credentials != "" {
		out.Credentials = override.Credentials
	}
	if override.Retry != nil {
		out.Retry = override.Retry
	}
	if override.HTTPClient != nil {
		out.HTTPClient = override.HTTPClient
	}
	if len(override.Headers) > 0 {
		out.Headers = make(map[string]string, len(c.Headers)+len(override.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
		for k, v := range override.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

func (c Config) retryPolicy() RetryPolicy {
	if c.Retry == nil {
		return DefaultRetryPolicy
	}
	p := *c.Retry
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// resolveURL joins target onto BaseURL unless target is already absolute.
func (c Config) resolveURL(target string) string {
	if u, err := url.Parse(target); err == nil && u.IsAbs() {
		return target
	}
	if c.BaseURL == "" {
		return target
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(target, "/")
}

// sameOriginJar forwards to jar only for URLs on origin.
type sameOriginJar struct {
	jar    http.CookieJar
	origin *url.URL
}

func (j *sameOriginJar) sameOrigin(u *url.URL) bool {
	return j.origin != nil && strings.EqualFold(u.Scheme, j.origin.Scheme) && strings.EqualFold(u.Host, j.origin.Host)
}

func (j *sameOriginJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if j.sameOrigin(u) {
		j.jar.SetCookies(u, cookies)
	}
}

func (j *sameOriginJar) Cookies(u *url.URL) []*http.Cookie {
	if j.sameOrigin(u) {
		return j.jar.Cookies(u)
	}
	return nil
}

func newJar() http.CookieJar {
	// cookiejar.New only fails on a bad PublicSuffixList, and we pass none.
	jar, _ := cookiejar.New(nil)
	return jar
}

// httpClientFor returns a shallow copy of the configured client with the
// cookie jar matching the credentials mode.
func httpClientFor(cfg Config, jar http.CookieJar) *http.Client {
	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	hc := *base

	switch cfg.Credentials {
	case CredentialsOmit:
		hc.Jar = nil
	case CredentialsInclude:
		hc.Jar = jar
	default:
		origin, err := url.Parse(cfg.BaseURL)
		if err != nil || cfg.BaseURL == "" {
			origin = nil
		}
		hc.Jar = &sameOriginJar{jar: jar, origin: origin}
	}
	return &hc
}
