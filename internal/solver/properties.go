// Package solver implements the call-properties solver, the core of
// the weaver: for every (layer, call, order) triple it determines which
// leaf inputs the layer uses locally, which of those must arrive over the
// wire, the stable record shape identity those inputs share, and the
// ordered schedule of operations and analyses the generated wrapper must
// run.
package solver

import "github.com/viant/weaver/internal/mapping"

// InputSet is an insertion-ordered set of mapping.Input, deduplicated by
// Input.Key(). Order matters: it drives deterministic emission.
type InputSet struct {
	index map[string]int
	items []mapping.Input
}

// NewInputSet creates an empty set.
func NewInputSet() *InputSet {
	return &InputSet{index: map[string]int{}}
}

// Add inserts in if its key is not already present. Returns true if it was
// newly added.
func (s *InputSet) Add(in mapping.Input) bool {
	k := in.Key()
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = len(s.items)
	s.items = append(s.items, in)
	return true
}

// AddAll inserts every item of other, preserving other's order for any
// newly added entries.
func (s *InputSet) AddAll(other *InputSet) {
	if other == nil {
		return
	}
	for _, in := range other.items {
		s.Add(in)
	}
}

// Contains reports whether an input with the given key is present.
func (s *InputSet) Contains(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Items returns the set contents in insertion order.
func (s *InputSet) Items() []mapping.Input {
	return append([]mapping.Input(nil), s.items...)
}

// Keys returns the set's keys in insertion order, the shape this set's
// content is hashed from (channelid.ShapeHash).
func (s *InputSet) Keys() []string {
	out := make([]string, len(s.items))
	for i, in := range s.items {
		out[i] = in.Key()
	}
	return out
}

// Len reports the number of distinct inputs in the set.
func (s *InputSet) Len() int {
	return len(s.items)
}

// OpExec is one entry of a layer's ops_to_execute schedule: an operation
// mapping that must run locally, in intra-call order, before the
// analyses/delegate call that consume its result.
type OpExec struct {
	OperationName string
	MappingID     int
	IntraOrder    int
}

// AnalysisExec is one entry of a layer's analysis execution schedule.
type AnalysisExec struct {
	AnalysisName string
	MappingID    int
	IntraOrder   int
}

// CallProperties is the solved state of one (layer, call, order) triple
//.
type CallProperties struct {
	Layer int
	Call  string
	Order mapping.Order

	// InformationRequired reports whether this layer/call/order needs any
	// input at all (used_args ∪ args_to_receive non-empty, or an analysis
	// with no inputs is still mapped here).
	InformationRequired bool

	// UsedArgs is the leaf-input set this layer consumes directly, after
	// flattening away every operation-result reference into the
	// operation's own underlying inputs.
	UsedArgs *InputSet

	// ArgsToReceive is UsedArgs unioned with the ArgsToReceive of every
	// layer feeding this one (the forward targets, for a wrap_down call):
	// the inputs that must physically arrive in the record this layer
	// receives. It is a superset of UsedArgs.
	ArgsToReceive *InputSet

	// InRecordUID is the stable identity assigned to ArgsToReceive's shape
	// two (layer, call, order) triples with the same
	// ArgsToReceive shape on the same layer share a uid.
	InRecordUID uint64

	// OutboundArgs is the record this layer constructs and forwards: the
	// next hop's ArgsToReceive (the feed sources' sets, for a wrap_down
	// call). The wrapper builds exactly this shape, so the set fed into
	// record construction always equals the set the matching dispatch
	// handler consumes.
	OutboundArgs *InputSet

	// OutRecordUID is the InRecordUID of the layer OutboundArgs is sent
	// to; zero-valued when the layer forwards nothing.
	OutRecordUID uint64

	// OpsToExecute is every operation that must run locally on this layer
	// to materialize the inputs consumed here, in schedule order.
	OpsToExecute []OpExec

	// AnalysesToExecute is every analysis mapped to this layer/call/order,
	// in schedule order.
	AnalysesToExecute []AnalysisExec

	NeedsWrapper  bool
	NeedsReceival bool

	// WrapAcrossCreatedOnLevel records whether a wrap_across event for
	// this call is created (not merely forwarded) on this layer.
	WrapAcrossCreatedOnLevel bool
}
