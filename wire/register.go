package wire

import (
	"github.com/Polqt/causalcrdt/compose"
	"github.com/Polqt/causalcrdt/primitives"
	"github.com/Polqt/causalcrdt/replica"
)

// init registers every Op type this repo's data types and compose
// wrappers can emit, the fixed dispatch table Encode/Decode look up by
// name — analogous to the teacher's own fixed MsgInsert/MsgDelete/...
// switch in Hub.Dispatch, but keyed by reflected type since the set of Op
// types here is open rather than a handful of RGA operations.
func init() {
	Register("counter.inc", primitives.IncOp{})

	Register("awset.add", primitives.AddOp{})
	Register("awset.remove", primitives.RemoveOp{})

	Register("uwmap.at", compose.AtOp{})
	Register("uwmap.remove", compose.RemoveOp{})

	Register("record.field", compose.FieldOp{})

	Register("union.switch", compose.SwitchOp{})
	Register("union.variant", compose.VariantOp{})

	Register("sequence.insert", compose.SeqInsertOp{})
	Register("sequence.remove", compose.SeqRemoveOp{})

	Register("membership", replica.MembershipOp{})
}
