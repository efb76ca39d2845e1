/*
	Madrox
	Copyright (c) 2026 The Madrox Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package madroxapp

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"
)

type server struct {
	app *App

	log *zap.Logger

	adminLn    net.Listener // plaintext, no authentication (loopback-only by default)
	httpServer *http.Server

	// Host and Origin values the admin listener answers to
	origins originPolicy

	mux *http.ServeMux
}

func (s server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := caddyhttp.NewResponseRecorder(w, nil, nil)
	w.Header().Set("Server", serverName)

	s.mux.ServeHTTP(rec, r)

	status := rec.Status()
	logFn := s.log.Info
	if status >= lowestErrorStatus {
		logFn = s.log.Error
	}
	// method and URI in the message keep sampling per route
	logFn(r.Method+" "+r.RequestURI,
		zap.String("remote", r.RemoteAddr),
		zap.Int("status", status),
		zap.Int("size", rec.Size()),
		zap.Duration("duration", time.Since(start)),
	)
}

// originPolicy holds the origins, and through them the Host header
// values, that may use the admin listener. An origin without a
// scheme matches any scheme.
type originPolicy []*url.URL

// newOriginPolicy allows the configured origins, or those listed in
// MADROX_ORIGIN when none are configured, plus the loopback forms of
// listenAddr and listenAddr itself. Unix socket listeners get only the
// configured origins.
func newOriginPolicy(configured []string, listenAddr string) originPolicy {
	if configured == nil {
		for o := range strings.SplitSeq(os.Getenv("MADROX_ORIGIN"), ",") {
			if o = strings.TrimSpace(o); o != "" {
				configured = append(configured, o)
			}
		}
	}

	candidates := slices.Clone(configured)
	if !strings.HasPrefix(listenAddr, "/") {
		host, port, err := net.SplitHostPort(listenAddr)
		if err != nil {
			host, port = listenAddr, ""
		}
		for _, lo := range []string{"localhost", "127.0.0.1", "::1"} {
			candidates = append(candidates, net.JoinHostPort(lo, port))
		}
		if host != "" && !isLoopback(listenAddr) {
			candidates = append(candidates, listenAddr)
		}
	}
	slices.Sort(candidates)
	candidates = slices.Compact(candidates)

	policy := make(originPolicy, 0, len(candidates))
	for _, c := range candidates {
		if !strings.Contains(c, "://") {
			policy = append(policy, &url.URL{Host: c})
			continue
		}
		u, err := url.Parse(c)
		if err != nil {
			continue
		}
		policy = append(policy, originOf(u))
	}
	return policy
}

// allowsHost reports whether host, a Host header value, names
// one of the allowed origins.
func (p originPolicy) allowsHost(host string) bool {
	return slices.ContainsFunc(p, func(u *url.URL) bool { return u.Host == host })
}

func (p originPolicy) allowsOrigin(origin *url.URL) bool {
	return slices.ContainsFunc(p, func(u *url.URL) bool {
		return (u.Scheme == "" || u.Scheme == origin.Scheme) && u.Host == origin.Host
	})
}

// isLoopback reports whether addr, with or without a port, is a
// unix socket path or a loopback host.
func isLoopback(addr string) bool {
	if strings.HasPrefix(addr, "/") {
		return true
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	ip, err := netip.ParseAddr(host)
	return err == nil && ip.IsLoopback()
}

// enforceHost wraps next so it only runs when the Host header names
// an allowed origin, which blocks DNS rebinding.
func (s server) enforceHost(next handler) handler {
	return handlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		if !s.origins.allowsHost(r.Host) {
			return Error{
				Err:        fmt.Errorf("unrecognized Host header value '%s'", r.Host),
				HTTPStatus: http.StatusForbidden,
				Log:        "Host not allowed",
				Message:    "This endpoint can only be accessed via a trusted host.",
			}
		}
		return next.ServeHTTP(w, r)
	})
}

// enforceOriginAndMethod rejects requests from unknown origins, answers
// CORS preflights, and requires method (GET also admits HEAD).
func (s server) enforceOriginAndMethod(method string, next handler) handler {
	return handlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		if origin := requestOrigin(r); origin != nil {
			if !s.origins.allowsOrigin(origin) {
				return Error{
					Err:        fmt.Errorf("unrecognized origin '%s'", origin),
					HTTPStatus: http.StatusForbidden,
					Log:        "Origin not allowed",
					Message:    "You can only access this API from a recognized origin.",
				}
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin.String())
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "OPTIONS, "+method)
				h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept")
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		switch {
		case r.Method == http.MethodOptions:
			return nil
		case r.Method == method, method == http.MethodGet && r.Method == http.MethodHead:
			return next.ServeHTTP(w, r)
		}
		return Error{
			Err:        fmt.Errorf("method '%s' not allowed", r.Method),
			HTTPStatus: http.StatusMethodNotAllowed,
			Log:        "Method not allowed",
		}
	})
}

// requestOrigin returns the origin of the page that made r, from the
// Origin header or else the Referer, or nil if neither is usable.
func requestOrigin(r *http.Request) *url.URL {
	raw := r.Header.Get("Origin")
	if raw == "" {
		raw = r.Header.Get("Referer")
	}
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return originOf(u)
}

// originOf returns the scheme and host of u.
func originOf(u *url.URL) *url.URL {
	return &url.URL{Scheme: u.Scheme, Host: u.Host}
}
