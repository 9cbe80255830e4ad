package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/weaver/internal/diagnostics"
	"github.com/viant/weaver/internal/spec"
)

func newLoadedRegistry(t *testing.T, calls []*spec.ApiCall, calcs []*spec.Calculation) *spec.Registry {
	t.Helper()
	r := spec.NewRegistry()
	for _, c := range calls {
		require.NoError(t, r.AddCall(c))
	}
	for _, c := range calcs {
		require.NoError(t, r.AddCalculation(c))
	}
	require.NoError(t, r.Load())
	return r
}

func TestModel_AttachAnalysis(t *testing.T) {
	call := &spec.ApiCall{Name: "Send", Group: "p2p", Arguments: []spec.Argument{
		{Kind: spec.ArgScalar, Name: "dest", Type: "int"},
		{Kind: spec.ArgScalar, Name: "count", Type: "int"},
	}}
	calc := &spec.Calculation{Kind: spec.KindAnalysis, Name: "LogSend", Group: "analyses",
		Input: []spec.InputDescription{{Type: "int", Name: "dest"}, {Type: "int", Name: "count"}}}
	r := newLoadedRegistry(t, []*spec.ApiCall{call}, []*spec.Calculation{calc})

	m := NewModel(r, diagnostics.NewSink(0))
	id, err := m.AttachAnalysis("Send", "LogSend", Pre, []Input{
		{Kind: InputArgument, ArgumentName: "dest"},
		{Kind: InputArgument, ArgumentName: "count"},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	mappings := m.MappingsOf("Send", Pre)
	require.Len(t, mappings, 1)
	assert.Equal(t, "LogSend", mappings[0].CalculationName)
	assert.False(t, mappings[0].IsOperation)
}

func TestModel_AttachRejectsArityMismatch(t *testing.T) {
	call := &spec.ApiCall{Name: "Send", Group: "p2p", Arguments: []spec.Argument{{Kind: spec.ArgScalar, Name: "dest"}}}
	calc := &spec.Calculation{Kind: spec.KindAnalysis, Name: "LogSend", Group: "a",
		Input: []spec.InputDescription{{Name: "dest"}, {Name: "count"}}}
	r := newLoadedRegistry(t, []*spec.ApiCall{call}, []*spec.Calculation{calc})

	m := NewModel(r, diagnostics.NewSink(0))
	_, err := m.AttachAnalysis("Send", "LogSend", Pre, []Input{{Kind: InputArgument, ArgumentName: "dest"}}, 0)
	require.Error(t, err)
}

func TestModel_AttachRejectsUnresolvedCallOrCalculation(t *testing.T) {
	r := newLoadedRegistry(t, nil, nil)
	m := NewModel(r, diagnostics.NewSink(0))

	_, err := m.AttachAnalysis("Missing", "Also", Pre, nil, 0)
	require.Error(t, err)
}

func TestModel_MultipleMappingsGetDistinctInstanceIDs(t *testing.T) {
	call := &spec.ApiCall{Name: "Send", Group: "p2p", Arguments: []spec.Argument{{Kind: spec.ArgScalar, Name: "dest"}}}
	calc := &spec.Calculation{Kind: spec.KindAnalysis, Name: "LogSend", Group: "a",
		Input: []spec.InputDescription{{Name: "dest"}}}
	r := newLoadedRegistry(t, []*spec.ApiCall{call}, []*spec.Calculation{calc})

	m := NewModel(r, diagnostics.NewSink(0))
	id0, err := m.AttachAnalysis("Send", "LogSend", Pre, []Input{{Kind: InputArgument, ArgumentName: "dest"}}, 0)
	require.NoError(t, err)
	id1, err := m.AttachAnalysis("Send", "LogSend", Pre, []Input{{Kind: InputArgument, ArgumentName: "dest"}}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, id0)
	assert.Equal(t, 1, id1)
	assert.Len(t, m.MappingsOf("Send", Pre), 2)
}

func TestModel_OperationLengthInputMustReferenceMappedOperation(t *testing.T) {
	call := &spec.ApiCall{Name: "Recv", Group: "p2p", Arguments: []spec.Argument{{Kind: spec.ArgScalar, Name: "comm"}}}
	op := &spec.Calculation{Kind: spec.KindOperation, Name: "ResolveComm", Group: "ops",
		Input: []spec.InputDescription{{Name: "comm"}}, ReturnType: "HandleInfo"}
	analysis := &spec.Calculation{Kind: spec.KindAnalysis, Name: "LogRecv", Group: "a",
		Input: []spec.InputDescription{{Name: "info"}}}
	r := newLoadedRegistry(t, []*spec.ApiCall{call}, []*spec.Calculation{op, analysis})

	m := NewModel(r, diagnostics.NewSink(0))

	// Referencing an operation not yet (or never) mapped to this call fails.
	_, err := m.AttachAnalysis("Recv", "LogRecv", Pre, []Input{
		{Kind: InputOperation, OperationName: "ResolveComm", OperationMappingID: 0},
	}, 0)
	require.Error(t, err)

	// Once the operation is mapped to the call, referencing it succeeds.
	_, err = m.AttachOperation("Recv", "ResolveComm", Pre, []Input{{Kind: InputArgument, ArgumentName: "comm"}}, -1)
	require.NoError(t, err)
	_, err = m.AttachAnalysis("Recv", "LogRecv", Pre, []Input{
		{Kind: InputOperation, OperationName: "ResolveComm", OperationMappingID: 0},
	}, 0)
	require.NoError(t, err)
}

func TestModel_CallReturnInputOnlyValidPost(t *testing.T) {
	call := &spec.ApiCall{Name: "Send", Group: "p2p"}
	calc := &spec.Calculation{Kind: spec.KindAnalysis, Name: "LogReturn", Group: "a",
		Input: []spec.InputDescription{{Name: "ret"}}}
	r := newLoadedRegistry(t, []*spec.ApiCall{call}, []*spec.Calculation{calc})
	m := NewModel(r, diagnostics.NewSink(0))

	_, err := m.AttachAnalysis("Send", "LogReturn", Pre, []Input{{Kind: InputCallReturn}}, 0)
	require.Error(t, err)

	_, err = m.AttachAnalysis("Send", "LogReturn", Post, []Input{{Kind: InputCallReturn}}, 0)
	require.NoError(t, err)
}

func TestModel_TypeMismatchWarnsButSucceeds(t *testing.T) {
	call := &spec.ApiCall{Name: "Send", Group: "p2p", Arguments: []spec.Argument{{Kind: spec.ArgScalar, Name: "dest", Type: "int"}}}
	calc := &spec.Calculation{Kind: spec.KindAnalysis, Name: "LogSend", Group: "a",
		Input: []spec.InputDescription{{Name: "dest", Type: "string"}}}
	r := newLoadedRegistry(t, []*spec.ApiCall{call}, []*spec.Calculation{calc})

	sink := diagnostics.NewSink(0)
	m := NewModel(r, sink)
	_, err := m.AttachAnalysis("Send", "LogSend", Pre, []Input{{Kind: InputArgument, ArgumentName: "dest"}}, 0)
	require.NoError(t, err)
	require.Len(t, sink.Warnings(), 1)
	assert.Equal(t, diagnostics.WarningTypeMismatch, sink.Warnings()[0].Kind)
}

func TestInput_KeyDistinguishesReturnAndLength(t *testing.T) {
	ret := Input{Kind: InputOperation, OperationName: "Op", OperationMappingID: 0}
	length := Input{Kind: InputOperation, OperationName: "Op", OperationMappingID: 0, UseLength: true}
	assert.NotEqual(t, ret.Key(), length.Key())
}
