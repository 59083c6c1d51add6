// Package httpapi exposes name-history lookups over HTTP.
//
// Routes:
//
//	GET /                             service banner
//	GET /user/profiles/{id}/names     name history as a JSON array
//	GET /healthz                      store reachability
//	GET /metrics                      Prometheus exposition
//	GET /static/*                     optional static file directory
//
// Lookup failures are rendered as {"type": ..., "error": ..., "code": ...}
// with the status chosen by the failure kind; see statusFor.
package httpapi
