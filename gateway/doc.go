// Package gateway exposes a clamd scanner over HTTP.
//
// POST /scan streams the request body to the scanner without buffering it and
// answers with a JSON verdict:
//
//	{"virus": null}                        // nothing found
//	{"virus": ["Eicar-Test-Signature"]}    // signatures in the order clamd reported them
//
// A malignant verdict is a successful scan and is returned with 200. Every
// backend or stream failure is answered with a generic 500 body; the error
// kind (connection, transport or protocol) and the full cause are logged
// server-side only. When a body limit is configured, larger bodies get 413.
//
// The gateway also serves GET /healthz, GET /version (when the scanner can
// report it) and GET /metrics (when metrics are enabled). Every request is
// tagged with an X-Request-ID and logged once on arrival and once on completion.
package gateway
