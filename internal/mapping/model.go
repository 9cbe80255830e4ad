package mapping

import (
	"fmt"

	"github.com/viant/weaver/internal/diagnostics"
	"github.com/viant/weaver/internal/spec"
)

// Mapping attaches a calculation (analysis or operation) to a call.
type Mapping struct {
	ID int // per-call-instance id, unique among mappings of the same calculation to the same call

	Call            string
	Order           Order
	CalculationName string
	IsOperation     bool
	IntraOrder      int // lower runs first; negative values are reserved for internal use
	Inputs          []Input

	// IsReduction records this mapping as a specialized reduction
	// attachment; it is only meaningful for analysis mappings whose
	// module declares reduction support.
	IsReduction bool
}

// key identifies a (call, order) bucket.
type key struct {
	call  string
	order Order
}

// Model is the mutable mapping store. It validates every attachment
// against the spec registry it was built from.
type Model struct {
	registry *spec.Registry
	sink     *diagnostics.Sink

	byCallOrder map[key][]*Mapping
	byCalcCall  map[string][]*Mapping // calculationName -> mappings, searchable by call via linear scan (small N)

	// instanceCounters tracks the next per-call-instance id for a given
	// (call, calculation) pair.
	instanceCounters map[string]int
}

// NewModel creates an empty mapping model bound to the given spec registry.
func NewModel(registry *spec.Registry, sink *diagnostics.Sink) *Model {
	return &Model{
		registry:         registry,
		sink:             sink,
		byCallOrder:      map[key][]*Mapping{},
		byCalcCall:       map[string][]*Mapping{},
		instanceCounters: map[string]int{},
	}
}

// AttachAnalysis attaches an analysis to a call and returns the new
// mapping's per-call-instance id.
func (m *Model) AttachAnalysis(callName, analysisName string, order Order, inputs []Input, intraOrder int) (int, error) {
	return m.attach(callName, analysisName, false, order, inputs, intraOrder)
}

// AttachOperation attaches an operation to a call and returns the new
// mapping's per-call-instance id.
func (m *Model) AttachOperation(callName, opName string, order Order, inputs []Input, intraOrder int) (int, error) {
	return m.attach(callName, opName, true, order, inputs, intraOrder)
}

func (m *Model) attach(callName, calcName string, isOperation bool, order Order, inputs []Input, intraOrder int) (int, error) {
	call, ok := m.registry.CallByName(callName)
	if !ok {
		return 0, diagnostics.NewUnresolvedReferenceError("call", callName)
	}
	calc, ok := m.registry.Calculation(calcName)
	if !ok {
		return 0, diagnostics.NewUnresolvedReferenceError("calculation", calcName)
	}
	if len(inputs) != len(calc.Input) {
		return 0, diagnostics.NewConstraintViolationError(
			fmt.Sprintf("mapping:%s->%s", calcName, callName),
			fmt.Sprintf("arity mismatch: calculation expects %d inputs, got %d", len(calc.Input), len(inputs)))
	}
	for i, in := range inputs {
		if err := m.validateInput(call, calc, i, in, order); err != nil {
			return 0, err
		}
	}
	instKey := callName + "/" + calcName
	id := m.instanceCounters[instKey]
	m.instanceCounters[instKey] = id + 1

	mp := &Mapping{
		ID:              id,
		Call:            callName,
		Order:           order,
		CalculationName: calcName,
		IsOperation:     isOperation,
		IntraOrder:      intraOrder,
		Inputs:          inputs,
	}
	k := key{call: callName, order: order}
	m.byCallOrder[k] = append(m.byCallOrder[k], mp)
	m.byCalcCall[calcName] = append(m.byCalcCall[calcName], mp)
	return id, nil
}

// validateInput checks arity/type matching (warning only) and resolves
// operation-length references against mappings already attached to the
// same call.
func (m *Model) validateInput(call *spec.ApiCall, calc *spec.Calculation, idx int, in Input, order Order) error {
	descriptor := calc.Input[idx]
	switch in.Kind {
	case InputArgument:
		arg, ok := call.Argument(in.ArgumentName)
		if !ok {
			return diagnostics.NewUnresolvedReferenceError("argument", in.ArgumentName)
		}
		if descriptor.Type != "" && arg.Type != "" && descriptor.Type != arg.Type {
			m.warnTypeMismatch(call.Name, order, descriptor, in, arg.Type)
		}
	case InputOperation:
		opCalc, ok := m.registry.Calculation(in.OperationName)
		if !ok {
			return diagnostics.NewUnresolvedReferenceError("operation", in.OperationName)
		}
		if opCalc.Kind != spec.KindOperation {
			return diagnostics.NewConstraintViolationError("mapping:"+in.OperationName, "operation-length/operation-value input must reference an operation")
		}
		if in.UseLength && !opCalc.ReturnIsArray {
			return diagnostics.NewConstraintViolationError("mapping:"+in.OperationName, "UseLength set but operation does not return an array")
		}
		if !m.operationMappedToCall(call.Name, in.OperationName, in.OperationMappingID) {
			return diagnostics.NewConstraintViolationError("mapping:"+in.OperationName,
				fmt.Sprintf("operation %q is not mapped to call %q at mapping id %d", in.OperationName, call.Name, in.OperationMappingID))
		}
	case InputCallReturn:
		if order != Post {
			return diagnostics.NewConstraintViolationError("mapping:call-return", "call-return input is only valid on post mappings")
		}
	case InputCallName, InputCallID:
		// always valid; no further checks.
	}
	return nil
}

func (m *Model) operationMappedToCall(callName, opName string, mappingID int) bool {
	for _, mp := range m.byCalcCall[opName] {
		if mp.Call == callName && mp.IsOperation && mp.ID == mappingID {
			return true
		}
	}
	return false
}

func (m *Model) warnTypeMismatch(call string, order Order, descriptor spec.InputDescription, in Input, argType string) {
	if m.sink == nil {
		return
	}
	m.sink.Record(diagnostics.Warning{
		Kind:  diagnostics.WarningTypeMismatch,
		Call:  call,
		Order: string(order),
		Detail: fmt.Sprintf("input %q declared as %q but descriptor expects %q",
			in.DisplayName(), argType, descriptor.Type),
	})
}

// MappingsOf returns every mapping attached to (call, order), in
// attachment order.
func (m *Model) MappingsOf(callName string, order Order) []*Mapping {
	return append([]*Mapping(nil), m.byCallOrder[key{call: callName, order: order}]...)
}

// MappingsForCall returns every mapping of the given calculation attached
// to the given call, across both orders.
func (m *Model) MappingsForCall(calcName, callName string) []*Mapping {
	var out []*Mapping
	for _, mp := range m.byCalcCall[calcName] {
		if mp.Call == callName {
			out = append(out, mp)
		}
	}
	return out
}

// MarkReduction flags an existing mapping as a reduction attachment; used
// by the reduction placer bookkeeping, not by attach-time validation.
func (m *Model) MarkReduction(mp *Mapping) {
	mp.IsReduction = true
}
