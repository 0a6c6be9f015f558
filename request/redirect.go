// Package request owns the redirect loop around a single transaction:
// following 3xx responses, adjusting method/body per the historical
// browser rules, stripping cross-origin credentials, and re-running the
// HSTS gate on every hop.
package request

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/corvid-labs/wireclient/header"
	"github.com/corvid-labs/wireclient/metrics"
	"github.com/corvid-labs/wireclient/security"
	"github.com/corvid-labs/wireclient/stream"
	"github.com/corvid-labs/wireclient/transaction"
	"github.com/corvid-labs/wireclient/wireerr"
)

const maxRedirects = 20

// Runner wraps transaction.Execute with the redirect loop. KeyFor derives
// the pool/stream endpoint key for a resolved URL, since each redirect hop
// may land on a different origin.
type Runner struct {
	HSTS    *security.HSTSStore
	KeyFor  func(u *url.URL) string
	NewTx   func(key string) *transaction.Transaction
	Metrics *metrics.Metrics // nil disables counter updates
}

// Do executes req, following redirects until a non-3xx response, a
// terminal error, the 20-redirect cap, or a revisit of an already-seen URL.
func (r *Runner) Do(ctx context.Context, req *transaction.Outbound) (*stream.Response, error) {
	visited := map[string]bool{req.URL.String(): true}
	current := req

	for count := 0; ; count++ {
		key := r.KeyFor(current.URL)
		tx := r.NewTx(key)

		resp, err := tx.Execute(ctx, current)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 300 || resp.StatusCode >= 400 {
			return resp, nil
		}

		location := firstHeader(resp.Header, "Location")
		if location == "" {
			return resp, nil // 3xx with no Location isn't a redirect
		}

		next, err := current.URL.Parse(location)
		if err != nil {
			return nil, wireerr.NewURL(wireerr.KindUnsafeRedirect, location, err)
		}

		if count >= maxRedirects {
			return nil, wireerr.NewURL(wireerr.KindTooManyRedirects, next.String(), nil)
		}
		if visited[next.String()] {
			return nil, wireerr.NewURL(wireerr.KindRedirectCycleDetected, next.String(), nil)
		}
		visited[next.String()] = true
		if r.Metrics != nil {
			r.Metrics.IncrementRedirects()
		}

		if r.HSTS != nil {
			scheme, port := r.HSTS.UpgradeScheme(next.Scheme, next.Hostname(), portOf(next))
			next.Scheme = scheme
			if port != defaultPort(scheme) {
				next.Host = next.Hostname() + ":" + strconv.Itoa(port)
			} else {
				next.Host = next.Hostname()
			}
		}

		current = adjustForRedirect(current, next, resp.StatusCode)
	}
}

// adjustForRedirect builds the next hop's Outbound: method/body rules per
// RFC 7231 historical browser behavior, and credential stripping when the
// redirect crosses origins.
func adjustForRedirect(prev *transaction.Outbound, next *url.URL, status int) *transaction.Outbound {
	method := prev.Method
	body := prev.Body
	contentLength := prev.ContentLength

	switch {
	case status == http.StatusSeeOther:
		method, body, contentLength = "GET", nil, 0
	case (status == http.StatusMovedPermanently || status == http.StatusFound) && prev.Method == http.MethodPost:
		method, body, contentLength = "GET", nil, 0
	case status == http.StatusTemporaryRedirect || status == http.StatusPermanentRedirect:
		// preserve method and body
	}

	var headers *header.Header
	if prev.Headers != nil {
		headers = prev.Headers.Clone()
	} else {
		headers = header.New()
	}
	crossOrigin := !sameOrigin(prev.URL, next)
	if crossOrigin {
		headers.Remove("Authorization")
		headers.Remove("Cookie") // the transaction re-consults the cookie store for the new URL
		next.User = nil
	}

	return &transaction.Outbound{
		Method:         method,
		URL:            next,
		Headers:        headers,
		Body:           body,
		ContentLength:  contentLength,
		SiteForCookies: prev.SiteForCookies,
		Priority:       prev.Priority,
	}
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

func firstHeader(h map[string][]string, name string) string {
	if vs, ok := h[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func portOf(u *url.URL) int {
	if p := u.Port(); p != "" {
		n := 0
		for _, c := range p {
			if c < '0' || c > '9' {
				return defaultPort(u.Scheme)
			}
			n = n*10 + int(c-'0')
		}
		return n
	}
	return defaultPort(u.Scheme)
}

func defaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}
