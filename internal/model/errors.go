package model

// ErrorKind classifies why a fetch or a symbol failed.
type ErrorKind int

const (
	KindNone         ErrorKind = iota
	KindTransport              // network, timeout, HTTP status, undecodable body
	KindAPILogical             // "Error Message" payload or missing series
	KindAPIQuota               // "Note"/"Information" rate-limit payload
	KindParse                  // no parseable points
	KindValidation             // nothing left after filtering
	KindPersistence            // store rejected the batch
	KindConnectivity           // store unreachable before the run
	KindInternal               // recovered panic
)

var kindNames = map[ErrorKind]string{
	KindNone:         "none",
	KindTransport:    "transport",
	KindAPILogical:   "api_error",
	KindAPIQuota:     "api_quota",
	KindParse:        "parse",
	KindValidation:   "validation",
	KindPersistence:  "persistence",
	KindConnectivity: "connectivity",
	KindInternal:     "internal",
}

// String returns the metric/log label for the kind.
func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}
