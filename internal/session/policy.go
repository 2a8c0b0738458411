// Package session decides cookie policy per request and persists the
// signed session payload in the shared cache.
package session

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Route tells how a request reached the service
type Route int

const (
	Direct Route = iota
	ProxiedViaGateway
)

func (r Route) String() string {
	if r == ProxiedViaGateway {
		return "proxied"
	}
	return "direct"
}

// Classify reports ProxiedViaGateway when the request carries a forwarded
// host and the marker appears in its path or forwarded prefix.
func Classify(r *http.Request, marker string) Route {
	if marker == "" || r.Header.Get("X-Forwarded-Host") == "" {
		return Direct
	}
	if strings.Contains(r.URL.Path, marker) || strings.Contains(r.Header.Get("X-Forwarded-Prefix"), marker) {
		return ProxiedViaGateway
	}
	return Direct
}

// CookiePolicy is the attribute set applied to the session cookie
type CookiePolicy struct {
	Route    Route
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
	Path     string
	Domain   string
	MaxAge   time.Duration
}

// PolicyFor returns the cookie attributes for a route. The domain is left
// empty in both cases so the browser scopes the cookie to the serving host.
func PolicyFor(route Route, lifetime time.Duration) CookiePolicy {
	p := CookiePolicy{
		Route:    route,
		Secure:   true,
		HTTPOnly: true,
		Path:     "/",
		MaxAge:   lifetime,
	}
	if route == ProxiedViaGateway {
		p.SameSite = http.SameSiteNoneMode
	} else {
		p.SameSite = http.SameSiteStrictMode
	}
	return p
}

// Cookie builds the session cookie carrying value
func (p CookiePolicy) Cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     p.Path,
		Domain:   p.Domain,
		MaxAge:   int(p.MaxAge / time.Second),
		Secure:   p.Secure,
		HttpOnly: p.HTTPOnly,
		SameSite: p.SameSite,
	}
}

// Expired builds a cookie that clears name on the client
func (p CookiePolicy) Expired(name string) *http.Cookie {
	c := p.Cookie(name, "")
	c.MaxAge = -1
	return c
}

type policyKey struct{}

// WithPolicy stores the selected policy on the context
func WithPolicy(ctx context.Context, p CookiePolicy) context.Context {
	return context.WithValue(ctx, policyKey{}, p)
}

// PolicyFromContext returns the request's policy, or the direct policy when
// none was selected.
func PolicyFromContext(ctx context.Context, lifetime time.Duration) CookiePolicy {
	if p, ok := ctx.Value(policyKey{}).(CookiePolicy); ok {
		return p
	}
	return PolicyFor(Direct, lifetime)
}
