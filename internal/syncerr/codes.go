// Package syncerr defines the error taxonomy for the synchronization layer.
package syncerr

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified error.
	CodeUnknown Code = "UNKNOWN"

	// Remote errors
	CodeNetworkUnavailable Code = "NETWORK_UNAVAILABLE"
	CodeRemoteRejected     Code = "REMOTE_REJECTED"

	// Fallback store errors
	CodeSerializationFailure   Code = "SERIALIZATION_FAILURE"
	CodeStaleSnapshotDiscarded Code = "STALE_SNAPSHOT_DISCARDED"

	// Cache/guard errors
	CodeConcurrentDeleteDiscarded Code = "CONCURRENT_DELETE_DISCARDED"
	CodeNotFound                  Code = "NOT_FOUND"

	// Lifecycle errors
	CodeWorkspaceClosed Code = "WORKSPACE_CLOSED"
)

// Retryable reports whether a failure with this code can succeed on a later attempt
// without user intervention.
func (c Code) Retryable() bool {
	switch c {
	case CodeNetworkUnavailable, CodeRemoteRejected:
		return true
	default:
		return false
	}
}

// Label returns a short human-readable description for status displays.
func (c Code) Label() string {
	switch c {
	case CodeNetworkUnavailable:
		return "network unavailable"
	case CodeRemoteRejected:
		return "rejected by server"
	case CodeSerializationFailure:
		return "serialization failure"
	case CodeStaleSnapshotDiscarded:
		return "stale snapshot discarded"
	case CodeConcurrentDeleteDiscarded:
		return "pending change discarded by delete"
	case CodeNotFound:
		return "not found"
	case CodeWorkspaceClosed:
		return "workspace closed"
	default:
		return "unknown error"
	}
}
