package ledger

import (
	"errors"
	"fmt"
	"net"
)

// ErrAllEndpointsUnreachable is returned when initialization cannot reach a
// single configured endpoint.
var ErrAllEndpointsUnreachable = errors.New("ledger: all endpoints unreachable")

// RPCError is an error reported by the ledger itself. These are terminal:
// the node evaluated the request and rejected it, so a retry against another
// endpoint would produce the same answer.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger rpc error %d: %s", e.Code, e.Message)
}

// TransientError wraps a failure that never reached the ledger's execution,
// such as a refused connection or an unreachable endpoint. The executor may
// rotate endpoints and retry these.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("ledger: transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// AmbiguousCommitError wraps a failure where the request may have reached the
// ledger before the response was lost, typically a timeout while awaiting the
// reply to a write. The executor must not retry these: the write may already
// have committed and the operation is not idempotent. Callers reconcile by
// re-reading state before deciding to resubmit.
type AmbiguousCommitError struct {
	Err error
}

func (e *AmbiguousCommitError) Error() string { return fmt.Sprintf("ledger: ambiguous commit: %v", e.Err) }
func (e *AmbiguousCommitError) Unwrap() error { return e.Err }

// IsTransient reports whether the executor may retry the error by rotating to
// another endpoint. Ledger-reported errors and ambiguous writes are final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	var ambiguous *AmbiguousCommitError
	if errors.As(err, &ambiguous) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
