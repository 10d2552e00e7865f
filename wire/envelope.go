// Package wire serializes replica.Event to and from the transport shape
// named in spec §6 (`{author, vv, op}`), following the teacher's own
// envelope idiom (session.Message: a type-discriminant string paired with
// a json.RawMessage payload) generalized over the open set of Op types
// every data type and compose wrapper in this repo contributes.
package wire

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/Polqt/causalcrdt/replica"
)

// Envelope is the on-the-wire shape of one replica.Event: the symbolic
// author and version vector travel as-is, while Op is carried as a named,
// opaque payload — the same Type/Payload split the teacher's
// session.Message uses for its own RGA operations.
type Envelope struct {
	Author  string            `json:"author"`
	VV      []replica.VVEntry `json:"vv"`
	Type    string            `json:"type"`
	Payload json.RawMessage   `json:"payload"`
	Ts      time.Time         `json:"ts"`
}

var (
	nameToType = map[string]reflect.Type{}
	typeToName = map[reflect.Type]string{}
)

// Register associates a wire type name with the concrete Go type of zero.
// Every Op type that can cross the wire must be registered once (see
// register.go's init) before Encode/Decode are used.
func Register(name string, zero any) {
	t := reflect.TypeOf(zero)
	nameToType[name] = t
	typeToName[t] = name
}

// Encode converts one replica.Event to its wire envelope, stamping ts.
// e.Op's concrete type must already be Register-ed.
func Encode(e replica.Event, ts time.Time) (Envelope, error) {
	t := reflect.TypeOf(e.Op)
	name, ok := typeToName[t]
	if !ok {
		return Envelope{}, fmt.Errorf("wire: encode: unregistered op type %v", t)
	}
	payload, err := json.Marshal(e.Op)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: encode: marshal payload: %w", err)
	}
	return Envelope{Author: e.Author, VV: e.VV, Type: name, Payload: payload, Ts: ts}, nil
}

// Decode converts a wire envelope back to a replica.Event.
func Decode(env Envelope) (replica.Event, error) {
	t, ok := nameToType[env.Type]
	if !ok {
		return replica.Event{}, fmt.Errorf("wire: decode: unregistered type %q", env.Type)
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(env.Payload, ptr.Interface()); err != nil {
		return replica.Event{}, fmt.Errorf("wire: decode: unmarshal payload: %w", err)
	}
	return replica.Event{Author: env.Author, VV: env.VV, Op: ptr.Elem().Interface()}, nil
}

// EncodeJSON and DecodeJSON are the actual bytes a transport sends and
// receives.
func EncodeJSON(e replica.Event, ts time.Time) ([]byte, error) {
	env, err := Encode(e, ts)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: encode json: %w", err)
	}
	return data, nil
}

func DecodeJSON(data []byte) (replica.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return replica.Event{}, fmt.Errorf("wire: decode json: %w", err)
	}
	return Decode(env)
}
