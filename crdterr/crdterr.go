// Package crdterr defines the error taxonomy shared by the causal delivery
// protocol, the event-graph log, and the pure-CRDT contract. The core never
// panics on protocol-level input; every fault a peer can induce is returned
// as one of these classified values instead.
package crdterr

import (
	"errors"
	"fmt"
)

// ProtocolFault means an event could not be accepted as-is: a malformed
// version vector, a duplicate dot carrying a different payload, or a dot
// that claims to depend on an event the log has never seen. The event is
// rejected; the replica that rejected it keeps running.
type ProtocolFault struct {
	Reason string
}

func (e *ProtocolFault) Error() string {
	return fmt.Sprintf("protocol fault: %s", e.Reason)
}

// NewProtocolFault builds a ProtocolFault with a formatted reason.
func NewProtocolFault(format string, args ...any) *ProtocolFault {
	return &ProtocolFault{Reason: fmt.Sprintf(format, args...)}
}

// MembershipMismatch means a version vector's dimension disagrees with the
// replica's current membership. It is fatal to the delivery in progress
// until membership is reconciled; it is not a ProtocolFault because the
// event itself may be perfectly well formed for the membership it was
// authored under.
type MembershipMismatch struct {
	Want int
	Got  int
}

func (e *MembershipMismatch) Error() string {
	return fmt.Sprintf("membership mismatch: expected vector of size %d, got %d", e.Want, e.Got)
}

// QueryDomainError means a query referenced a nested address that does not
// exist in the log tree (e.g. a map key never added, or a composite path
// that routes nowhere). Callers receive this rather than a panic; per-type
// semantics decide whether to also return an empty/absent value alongside
// it.
type QueryDomainError struct {
	Address string
}

func (e *QueryDomainError) Error() string {
	return fmt.Sprintf("query domain error: no such address %q", e.Address)
}

// IsProtocolFault reports whether err (or something it wraps) is a
// ProtocolFault.
func IsProtocolFault(err error) bool {
	var pf *ProtocolFault
	return errors.As(err, &pf)
}
