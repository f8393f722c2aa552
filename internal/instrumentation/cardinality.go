package instrumentation

import "strconv"

// StatusClass maps an HTTP status to "2xx", "4xx" and so on, keeping the
// status label to six values. Codes outside 100-599 are "unknown".
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Operation types for upstream API metrics.
const (
	OperationList     = "list"
	OperationCreate   = "create"
	OperationUpdate   = "update"
	OperationDelete   = "delete"
	OperationExchange = "exchange"
	OperationRefresh  = "refresh"
	OperationExtract  = "extract"
	OperationHealth   = "health"
	OperationUpload   = "upload"
	OperationGenerate = "generate"
	OperationChat     = "chat"
	OperationAuth     = "auth"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Results of an authorization flow or token refresh.
const (
	OAuthResultSuccess   = "success"
	OAuthResultFailure   = "failure"
	OAuthResultCancelled = "cancelled"
	OAuthResultBlocked   = "blocked"
	OAuthResultCached    = "cached"
	OAuthResultSkipped   = "skipped"
)

// Upstream services.
const (
	ServiceCalendar = "calendar"
	ServiceBackend  = "backend"
	ServiceOAuth    = "oauth"
)
