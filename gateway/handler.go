package gateway

import (
	"net/http"
	"time"

	clamav "github.com/DevHatRo/clamav-gateway-go"
	"github.com/DevHatRo/clamav-gateway-go/bridge"
)

// handleScan streams the request body to the scanner and answers with the
// verdict. Nothing is written until the scan has finished, so the caller
// gets either a complete verdict or a complete error.
func (g *Gateway) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestIDFromContext(ctx)
	log := g.logger.With("request_id", requestID)

	body := bridge.NewReader(r.Body, g.maxBodyBytes)
	start := time.Now()
	g.metrics.scanStarted()

	verdict, err := g.scanner.ScanReader(ctx, body)
	if err == nil && verdict == nil {
		err = clamav.NewProtocolError("scanner returned no verdict", "")
	}
	elapsed := time.Since(start)

	if err != nil {
		kind := errorKind(err)
		status := statusForError(err)
		g.metrics.scanFinished(outcomeError, kind, body.BytesRead(), elapsed)

		log.Error("scan failed",
			"error", err,
			"error_kind", kind,
			"status", status,
			"bytes", body.BytesRead(),
			"duration_ms", elapsed.Milliseconds(),
		)
		writeError(w, status, scanFailureMessage(status), requestID)
		return
	}

	outcome := outcomeBenign
	if verdict.IsMalignant() {
		outcome = outcomeMalignant
	}
	g.metrics.scanFinished(outcome, "", body.BytesRead(), elapsed)

	log.Info("scan completed",
		"verdict", outcome,
		"infection_types", verdict.InfectionTypes,
		"bytes", body.BytesRead(),
		"duration_ms", elapsed.Milliseconds(),
	)
	writeJSON(w, http.StatusOK, NewScanResponse(*verdict))
}

type healthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if g.health != nil && !g.health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}

func (g *Gateway) handleVersion(v Versioner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := RequestIDFromContext(r.Context())

		result, err := v.Version(r.Context())
		if err != nil {
			g.logger.Error("version lookup failed",
				"request_id", requestID,
				"error", err,
				"error_kind", errorKind(err),
			)
			writeError(w, http.StatusInternalServerError, "version lookup failed", requestID)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
