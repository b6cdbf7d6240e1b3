package clamav

// Verdict is the outcome of one completed scan.
//
// A verdict with no infection types is benign. A malignant verdict carries the
// signature names in the order clamd reported them.
type Verdict struct {
	InfectionTypes []string
}

// Benign returns a verdict without findings.
func Benign() Verdict {
	return Verdict{}
}

// Malignant returns a verdict carrying the given signature names.
func Malignant(infectionTypes ...string) Verdict {
	return Verdict{InfectionTypes: infectionTypes}
}

// IsBenign returns true if the scan found nothing.
func (v Verdict) IsBenign() bool {
	return len(v.InfectionTypes) == 0
}

// IsMalignant returns true if the scan found at least one signature.
func (v Verdict) IsMalignant() bool {
	return len(v.InfectionTypes) > 0
}

// VersionResult contains the clamd version reply.
type VersionResult struct {
	// Raw is the full reply, e.g. "ClamAV 1.3.1/27401/Tue Sep 10 08:35:33 2024".
	Raw string `json:"version"`
	// Engine is the engine version, e.g. "ClamAV 1.3.1".
	Engine string `json:"engine"`
	// Database is the signature database version, empty if clamd did not report it.
	Database string `json:"database,omitempty"`
	// DatabaseDate is the signature database build date as reported by clamd.
	DatabaseDate string `json:"database_date,omitempty"`
}
