// Package compose implements CRDT composition (nesting, spec §4.4): an
// addressed operation targets a nested child CRDT through a path, each
// composite node owning its own PO-Log restricted to what's addressed to
// it, while every event still carries the single root-scoped version
// vector stamped by the replica.
package compose

// Address identifies a path into a nested composite: the head segment is
// interpreted by the outermost composite (a map key, a record field, a
// union tag, a graph node or edge id); the remainder is forwarded to
// whatever composite or primitive sits at that child.
type Address []string

// Head splits off the first segment. ok is false for an empty address.
func (a Address) Head() (segment string, rest Address, ok bool) {
	if len(a) == 0 {
		return "", nil, false
	}
	return a[0], a[1:], true
}

// Append returns a new address with segment appended, leaving a untouched.
func (a Address) Append(segment string) Address {
	out := make(Address, len(a)+1)
	copy(out, a)
	out[len(a)] = segment
	return out
}
