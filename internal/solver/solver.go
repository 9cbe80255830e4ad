package solver

import (
	"fmt"
	"sort"

	"github.com/viant/weaver/internal/channelid"
	"github.com/viant/weaver/internal/diagnostics"
	"github.com/viant/weaver/internal/layer"
	"github.com/viant/weaver/internal/mapping"
	"github.com/viant/weaver/internal/spec"
)

// Solver runs the three-pass call-properties algorithm over a
// loaded spec registry, mapping model and reduced layer graph.
type Solver struct {
	registry *spec.Registry
	model    *mapping.Model
	graph    *layer.Graph
	sink     *diagnostics.Sink

	// props[layer][call][order]
	props map[int]map[string]map[mapping.Order]*CallProperties

	// shapeUID dedupes ArgsToReceive shapes within a single layer; uid
	// assignment is a monotonic counter shared across the whole solve.
	shapeUID map[int]map[uint64]uint64
	nextUID  uint64
}

// New creates a Solver bound to the given registry, mapping model and
// layer graph. The graph must already be reduced to a tree
// (graph.ReduceToTree) before Solve is called.
func New(registry *spec.Registry, model *mapping.Model, g *layer.Graph, sink *diagnostics.Sink) *Solver {
	return &Solver{
		registry: registry,
		model:    model,
		graph:    g,
		sink:     sink,
		props:    map[int]map[string]map[mapping.Order]*CallProperties{},
		shapeUID: map[int]map[uint64]uint64{},
		// uid 0 is reserved so OutRecordUID can mean "forwards nothing".
		nextUID: 1,
	}
}

// Solve runs Pass A, B, B' and C over every (layer, call, order) triple
// and returns the resulting properties, sorted for deterministic emission
// by layer order, then call name, then order.
func (s *Solver) Solve() ([]*CallProperties, error) {
	layers := s.graph.Layers()
	calls := s.registry.Calls()

	for _, l := range layers {
		s.props[l.Order] = map[string]map[mapping.Order]*CallProperties{}
		for _, call := range calls {
			s.props[l.Order][call.Name] = map[mapping.Order]*CallProperties{
				mapping.Pre:  {Layer: l.Order, Call: call.Name, Order: mapping.Pre, UsedArgs: NewInputSet(), ArgsToReceive: NewInputSet(), OutboundArgs: NewInputSet()},
				mapping.Post: {Layer: l.Order, Call: call.Name, Order: mapping.Post, UsedArgs: NewInputSet(), ArgsToReceive: NewInputSet(), OutboundArgs: NewInputSet()},
			}
		}
	}

	// Pass A: local use, per layer.
	for _, l := range layers {
		for _, call := range calls {
			for _, ord := range []mapping.Order{mapping.Pre, mapping.Post} {
				if err := s.passA(l, call, ord); err != nil {
					return nil, err
				}
			}
		}
	}

	// Pass B / B': forward or reverse propagation, per call (its
	// direction depends on whether it is a wrap_down call).
	for _, call := range calls {
		for _, ord := range []mapping.Order{mapping.Pre, mapping.Post} {
			if call.WrapDown {
				s.passBPrime(call.Name, ord, layers)
			} else {
				s.passB(call.Name, ord, layers)
			}
		}
	}

	// Pass C: record-uid assignment, then outbound-record derivation and
	// the wrapper/receival flags. Uids must exist for every triple before
	// OutRecordUID can point at a forward target's uid, so the two halves
	// run as separate sweeps.
	var out []*CallProperties
	for _, l := range layers {
		for _, call := range calls {
			for _, ord := range []mapping.Order{mapping.Pre, mapping.Post} {
				p := s.props[l.Order][call.Name][ord]
				if err := s.passC(p); err != nil {
					return nil, err
				}
				out = append(out, p)
			}
		}
	}
	for _, l := range layers {
		for _, call := range calls {
			for _, ord := range []mapping.Order{mapping.Pre, mapping.Post} {
				s.deriveOutboundAndFlags(s.props[l.Order][call.Name][ord], call)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Layer != out[j].Layer {
			return out[i].Layer < out[j].Layer
		}
		if out[i].Call != out[j].Call {
			return out[i].Call < out[j].Call
		}
		return out[i].Order < out[j].Order
	})
	return out, nil
}

// Properties returns the solved properties for one (layer, call, order)
// triple, or false if Solve has not populated it (unknown layer/call).
func (s *Solver) Properties(layerOrder int, call string, ord mapping.Order) (*CallProperties, bool) {
	byCall, ok := s.props[layerOrder]
	if !ok {
		return nil, false
	}
	byOrder, ok := byCall[call]
	if !ok {
		return nil, false
	}
	p, ok := byOrder[ord]
	return p, ok
}

// passA computes used_args, ops_to_execute and analyses_to_execute from
// the mappings whose owning module is assigned to this layer (analyses)
// or that are reachable while flattening one of those (operations).
func (s *Solver) passA(l *layer.Layer, call *spec.ApiCall, ord mapping.Order) error {
	p := s.props[l.Order][call.Name][ord]
	assigned := map[string]bool{}
	for _, m := range l.AssignedModules {
		assigned[m] = true
	}

	opsByKey := map[string]OpExec{}
	var analyses []AnalysisExec

	for _, mp := range s.model.MappingsOf(call.Name, ord) {
		if mp.IsOperation {
			continue // operations only run to satisfy an analysis; see below
		}
		calc, ok := s.registry.Calculation(mp.CalculationName)
		if !ok {
			return diagnostics.NewUnresolvedReferenceError("calculation", mp.CalculationName)
		}
		if !assigned[calc.ModuleName] {
			continue
		}
		analyses = append(analyses, AnalysisExec{AnalysisName: mp.CalculationName, MappingID: mp.ID, IntraOrder: mp.IntraOrder})

		if calc.NeedsChannelID {
			p.UsedArgs.Add(mapping.Input{Kind: mapping.InputChannelID})
		}
		visiting := map[string]bool{}
		for _, in := range mp.Inputs {
			leaves, err := s.flatten(call, in, visiting, opsByKey)
			if err != nil {
				return err
			}
			for _, leaf := range leaves {
				p.UsedArgs.Add(leaf)
			}
		}

		module, ok := s.registry.AnalysisModule(calc.ModuleName)
		if ok {
			for _, created := range module.CallsCreated {
				if created == call.Name {
					p.WrapAcrossCreatedOnLevel = true
				}
			}
		}
	}

	sort.Slice(analyses, func(i, j int) bool {
		if analyses[i].IntraOrder != analyses[j].IntraOrder {
			return analyses[i].IntraOrder < analyses[j].IntraOrder
		}
		if analyses[i].AnalysisName != analyses[j].AnalysisName {
			return analyses[i].AnalysisName < analyses[j].AnalysisName
		}
		return analyses[i].MappingID < analyses[j].MappingID
	})
	p.AnalysesToExecute = analyses

	ops := make([]OpExec, 0, len(opsByKey))
	for _, op := range opsByKey {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].IntraOrder != ops[j].IntraOrder {
			return ops[i].IntraOrder < ops[j].IntraOrder
		}
		if ops[i].OperationName != ops[j].OperationName {
			return ops[i].OperationName < ops[j].OperationName
		}
		return ops[i].MappingID < ops[j].MappingID
	})
	p.OpsToExecute = ops
	return nil
}

// flatten expands an Input into the leaf inputs (arguments, call name,
// call return, call id) it ultimately depends on, recursing through any
// operation it references and recording every operation visited along the
// way in opsByKey so Pass A can schedule it.
//
// Length sources come first: an array's length must precede the array in
// every record so the receiver can size the deserialization buffer, so
// the length leaf is emitted ahead of the array leaf here and the
// insertion-ordered InputSet keeps that order everywhere downstream.
//
// Two operations that both claim to be "the" producer of the same input
// cannot arise here: an InputOperation always names an explicit
// (operation, mapping id) pair, so ambiguity is only possible when an
// operation is mapped to the same call more than once with different
// mapping ids; those are distinct operation instances and never collide.
func (s *Solver) flatten(call *spec.ApiCall, in mapping.Input, visiting map[string]bool, opsByKey map[string]OpExec) ([]mapping.Input, error) {
	if in.Kind != mapping.InputOperation {
		var leaves []mapping.Input
		if in.LengthSource != nil {
			lenLeaves, err := s.flatten(call, *in.LengthSource, visiting, opsByKey)
			if err != nil {
				return nil, err
			}
			leaves = append(leaves, lenLeaves...)
		}
		if in.Kind == mapping.InputArgument {
			arg, ok := call.Argument(in.ArgumentName)
			if !ok {
				return nil, diagnostics.NewUnresolvedReferenceError("argument", in.ArgumentName)
			}
			switch arg.Kind {
			case spec.ArgArrayWithArgLen:
				leaves = append(leaves, mapping.Input{Kind: mapping.InputArgument, ArgumentName: arg.LengthArgName})
			case spec.ArgArrayWithOpLen:
				lenOp := mapping.Input{
					Kind:               mapping.InputOperation,
					OperationName:      arg.LengthOperation,
					OperationMappingID: arg.LengthMappingID,
					UseLength:          arg.UseReturnLength,
				}
				opLeaves, err := s.flatten(call, lenOp, visiting, opsByKey)
				if err != nil {
					return nil, err
				}
				leaves = append(leaves, opLeaves...)
			}
		}
		return append(leaves, in), nil
	}

	opKey := fmt.Sprintf("%s#%d", in.OperationName, in.OperationMappingID)
	if visiting[opKey] {
		return nil, diagnostics.NewConstraintViolationError("operation:"+in.OperationName, "operation input graph contains a cycle")
	}
	visiting[opKey] = true
	defer delete(visiting, opKey)

	var opMapping *mapping.Mapping
	for _, mp := range s.model.MappingsForCall(in.OperationName, call.Name) {
		if mp.IsOperation && mp.ID == in.OperationMappingID {
			opMapping = mp
			break
		}
	}
	if opMapping == nil {
		return nil, diagnostics.NewUnresolvedReferenceError("operation-mapping", opKey)
	}

	opsByKey[opKey] = OpExec{OperationName: in.OperationName, MappingID: in.OperationMappingID, IntraOrder: opMapping.IntraOrder}

	var leaves []mapping.Input
	seen := map[string]bool{}
	for _, sub := range opMapping.Inputs {
		subLeaves, err := s.flatten(call, sub, visiting, opsByKey)
		if err != nil {
			return nil, err
		}
		for _, leaf := range subLeaves {
			if seen[leaf.Key()] {
				continue
			}
			seen[leaf.Key()] = true
			leaves = append(leaves, leaf)
		}
	}
	return leaves, nil
}

// passB propagates args_to_receive up from the application layer (order
// 0) toward the front-end, processing layers in ascending order so every
// layer's physical children (layer.Graph.FeedSources) are already solved.
func (s *Solver) passB(callName string, ord mapping.Order, layers []*layer.Layer) {
	for _, l := range layers {
		p := s.props[l.Order][callName][ord]
		p.ArgsToReceive.AddAll(leafOnly(p.UsedArgs))
		for _, childOrder := range s.graph.FeedSources(l.Order) {
			child := s.props[childOrder][callName][ord]
			p.ArgsToReceive.AddAll(child.ArgsToReceive)
		}
	}
}

// passBPrime is Pass B's mirror for wrap_down calls: such a call's record
// originates at the front-end and is driven down toward the application,
// so propagation runs in the opposite direction, aggregating from each
// layer's forward targets (its next hop toward the front-end under the
// normal orientation, which is "up the tree" from this layer's point of
// view in the wrap_down flow).
func (s *Solver) passBPrime(callName string, ord mapping.Order, layers []*layer.Layer) {
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		p := s.props[l.Order][callName][ord]
		p.ArgsToReceive.AddAll(leafOnly(p.UsedArgs))
		for _, nextOrder := range s.graph.ForwardTargets(l.Order) {
			next := s.props[nextOrder][callName][ord]
			p.ArgsToReceive.AddAll(next.ArgsToReceive)
		}
	}
}

// leafOnly strips the synthetic channel-id pseudo-input: it is always
// locally available and never travels as a distinct record field.
func leafOnly(in *InputSet) *InputSet {
	out := NewInputSet()
	for _, item := range in.Items() {
		if item.Kind == mapping.InputChannelID {
			continue
		}
		out.Add(item)
	}
	return out
}

// passC assigns the record-uid for p's args-to-receive shape (deduped per
// layer by shape, drawn from a counter shared across the whole solve).
func (s *Solver) passC(p *CallProperties) error {
	p.InformationRequired = p.UsedArgs.Len() > 0 || p.ArgsToReceive.Len() > 0 || len(p.AnalysesToExecute) > 0 || len(p.OpsToExecute) > 0

	hash, err := channelid.ShapeHash(p.ArgsToReceive.Keys())
	if err != nil {
		return err
	}
	byHash, ok := s.shapeUID[p.Layer]
	if !ok {
		byHash = map[uint64]uint64{}
		s.shapeUID[p.Layer] = byHash
	}
	uid, ok := byHash[hash]
	if !ok {
		uid = s.nextUID
		s.nextUID++
		byHash[hash] = uid
	}
	p.InRecordUID = uid
	return nil
}

// deriveOutboundAndFlags fills OutboundArgs/OutRecordUID from the solved
// neighbour sets and derives needs_wrapper/needs_receival.
//
// The outbound record of a layer is, by construction, the next hop's
// ArgsToReceive: after tree reduction a layer forwards to at most one
// target (wrap_down calls instead fan out to every feed source, whose
// sets are unioned). A wrapper is needed wherever local work is scheduled
// and wherever the call can originate with a non-empty outbound record:
// the application layer, every layer for a wrapped_everywhere call, the
// creating layer of a wrap_across call, and the front-end root for a
// wrap_down call. A finalizer is wrapped on the application and received
// on every tool layer regardless of its argument sets, so shutdown
// reaches every place.
func (s *Solver) deriveOutboundAndFlags(p *CallProperties, call *spec.ApiCall) {
	var hops []int
	if call.WrapDown {
		hops = s.graph.FeedSources(p.Layer)
	} else {
		hops = s.graph.ForwardTargets(p.Layer)
	}
	sort.Ints(hops)
	for _, hop := range hops {
		next := s.props[hop][p.Call][p.Order]
		p.OutboundArgs.AddAll(next.ArgsToReceive)
		if p.OutRecordUID == 0 && next.ArgsToReceive.Len() > 0 {
			p.OutRecordUID = next.InRecordUID
		}
	}

	localWork := len(p.AnalysesToExecute) > 0 || len(p.OpsToExecute) > 0 || p.WrapAcrossCreatedOnLevel
	origin := false
	switch {
	case call.WrapDown:
		origin = len(s.graph.ForwardTargets(p.Layer)) == 0
	case call.WrappedEverywhere:
		origin = true
	case call.WrapAcross:
		origin = p.WrapAcrossCreatedOnLevel
	default:
		origin = p.Layer == 0
	}
	p.NeedsWrapper = localWork || (origin && p.OutboundArgs.Len() > 0) || (call.IsFinalizer && p.Layer == 0)
	p.NeedsReceival = p.Layer != 0 && (p.ArgsToReceive.Len() > 0 || call.IsFinalizer)
}
