// Package mapping implements the attachment model: bindings that
// attach an analysis or operation to a particular API call, with a
// declared pre/post order, a per-call instance id, and the wiring of each
// calculation input to its source.
package mapping

import "strconv"

// Order is where, relative to the delegate call, a mapping executes.
type Order string

const (
	Pre  Order = "pre"
	Post Order = "post"
)

// InputKind tags the Input variant.
type InputKind int

const (
	InputArgument InputKind = iota
	InputOperation
	InputCallName
	InputCallReturn
	InputCallID
	// InputChannelID is never produced by a spec reader; the solver
	// synthesizes it for calculations with NeedsChannelID set. It behaves
	// like used_args for Pass A bookkeeping but never propagates into
	// args_to_receive: the channel id is always locally available wherever
	// a record is handled, so it is never "received" separately.
	InputChannelID
)

// Input is a tagged union over the five ways a mapping can feed a
// calculation argument. The polymorphic input hierarchy is flattened into
// a single struct with a kind tag so downstream code switches on the tag
// instead of type-asserting.
type Input struct {
	Kind InputKind

	// ArgumentName is set for InputArgument: the name of an argument of
	// the target call.
	ArgumentName string

	// OperationName/OperationMappingID are set for InputOperation: the
	// operation mapped to the same call at the given mapping id, and
	// whether its length (rather than its return value) is consumed.
	OperationName     string
	OperationMappingID int
	UseLength          bool

	// IsArray and LengthSource describe the shape of the value this input
	// exposes to the calculation, mirroring Argument's own length
	// bookkeeping so array lengths propagate transitively through
	// operation chains (an array input always drags its length
	// source along).
	IsArray      bool
	LengthSource *Input
}

// DisplayName returns a human-readable label for diagnostics and
// generated-code identifiers.
func (in Input) DisplayName() string {
	switch in.Kind {
	case InputArgument:
		return in.ArgumentName
	case InputOperation:
		return in.OperationName
	case InputCallName:
		return "$call_name"
	case InputCallReturn:
		return "$call_return"
	case InputCallID:
		return "$call_id"
	case InputChannelID:
		return "$channel_id"
	}
	return "$unknown"
}

// Key returns a stable identity string used to dedupe inputs across
// used_args/args_to_receive set computations. Two Input values that
// would resolve to the exact same wire value share a Key.
func (in Input) Key() string {
	switch in.Kind {
	case InputArgument:
		return "arg:" + in.ArgumentName
	case InputOperation:
		suffix := "ret"
		if in.UseLength {
			suffix = "len"
		}
		return "op:" + in.OperationName + ":" + strconv.Itoa(in.OperationMappingID) + ":" + suffix
	case InputCallName:
		return "callname"
	case InputCallReturn:
		return "callreturn"
	case InputCallID:
		return "callid"
	case InputChannelID:
		return "channelid"
	}
	return "unknown"
}
