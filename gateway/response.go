package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	clamav "github.com/DevHatRo/clamav-gateway-go"
	"github.com/DevHatRo/clamav-gateway-go/bridge"
)

// ScanResponse is the JSON body returned for a completed scan.
// Virus is null for a benign verdict and lists the signatures otherwise.
type ScanResponse struct {
	Virus []string `json:"virus"`
}

// NewScanResponse maps a verdict onto the wire representation.
func NewScanResponse(v clamav.Verdict) ScanResponse {
	if v.IsBenign() {
		return ScanResponse{}
	}
	return ScanResponse{Virus: append([]string(nil), v.InfectionTypes...)}
}

// Verdict maps the wire representation back onto a verdict. A decoded empty
// array is kept as an empty, non-nil list so it survives a round trip.
func (r ScanResponse) Verdict() clamav.Verdict {
	if r.Virus == nil {
		return clamav.Benign()
	}
	return clamav.Verdict{InfectionTypes: append([]string{}, r.Virus...)}
}

// ErrorResponse is the JSON body returned for any failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

// Error kinds used in logs and metrics.
const (
	kindConnection   = "connection"
	kindTransport    = "transport"
	kindProtocol     = "protocol"
	kindBodyTooLarge = "body_too_large"
	kindUnknown      = "unknown"
)

// errorKind classifies a scan failure for operators. The caller only ever
// sees the status code and a generic message.
func errorKind(err error) string {
	if errors.Is(err, bridge.ErrBodyTooLarge) {
		return kindBodyTooLarge
	}
	switch clamav.ErrorCode(err) {
	case clamav.CodeConnection:
		return kindConnection
	case clamav.CodeTransport:
		return kindTransport
	case clamav.CodeProtocol:
		return kindProtocol
	default:
		return kindUnknown
	}
}

// statusForError maps a scan failure to an HTTP status. Every backend and
// stream failure collapses to 500; only an exceeded body limit is the
// caller's fault.
func statusForError(err error) int {
	if errors.Is(err, bridge.ErrBodyTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// scanFailureMessage is the only error text a caller of /scan ever sees.
func scanFailureMessage(status int) string {
	if status == http.StatusRequestEntityTooLarge {
		return "request body too large"
	}
	return "scan failed"
}

// writeJSON encodes body before touching the response so an encoding failure
// can still be reported as a complete 500.
func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":"internal server error","status":500}`)
	}
	data = append(data, '\n')

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg, requestID string) {
	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		Status:    status,
		RequestID: requestID,
	})
}
