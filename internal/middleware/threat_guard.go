package middleware

import (
	"context"
	"net/http"

	"github.com/codec-agences/admin-backend/internal/apperr"
	"github.com/codec-agences/admin-backend/internal/httputil"
	"github.com/codec-agences/admin-backend/internal/threat"
)

// Inspector scans request fields for attack patterns
type Inspector interface {
	Inspect(ctx context.Context, ip, endpoint string, fields map[string]any) threat.Report
}

// ThreatGuard rejects requests whose JSON body or query string matches an
// attack pattern. Query values are scanned under "query.<name>".
func ThreatGuard(inspector Inspector, render apperr.Renderer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fields, err := httputil.ReadJSONFields(r)
			if err != nil {
				render.Write(w, r, apperr.Validation("Invalid request body", nil))
				return
			}
			for name, values := range r.URL.Query() {
				for _, v := range values {
					fields["query."+name] = v
				}
			}

			report := inspector.Inspect(r.Context(), httputil.ClientIP(r), r.URL.Path, fields)
			if !report.Empty() {
				render.Write(w, r, apperr.Threat())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
