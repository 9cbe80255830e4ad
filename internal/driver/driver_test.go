package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/weaver/internal/codegen/wrapper"
	"github.com/viant/weaver/internal/diagnostics"
	"github.com/viant/weaver/internal/layer"
	"github.com/viant/weaver/internal/mapping"
	"github.com/viant/weaver/internal/spec"
	"github.com/viant/weaver/internal/specio"
	"github.com/viant/weaver/internal/specio/fake"
)

func findCall(docs []wrapper.Document, layerOrder int, call string) *wrapper.CallBlock {
	for i := range docs {
		if docs[i].Layer != layerOrder {
			continue
		}
		for j := range docs[i].Calls {
			if docs[i].Calls[j].Name == call {
				return &docs[i].Calls[j]
			}
		}
	}
	return nil
}

// A single-layer logging module on top of a Send call whose record
// must travel from the application layer to the module's host layer.
func TestRun_SingleLayerLogging(t *testing.T) {
	r := fake.New().
		WithGTI("gti.xml", specio.GTIDocument{}).
		WithAPI("api.xml", specio.APIDocument{Calls: []spec.ApiCall{
			{Name: "Send", Group: "p2p", Arguments: []spec.Argument{
				{Kind: spec.ArgScalar, Name: "dest"},
				{Kind: spec.ArgScalar, Name: "count"},
				{Kind: spec.ArgScalar, Name: "tag"},
			}},
		}}).
		WithAnalyses("analysis.xml", specio.AnalysisDocument{
			Calculations: []spec.Calculation{
				{Kind: spec.KindAnalysis, Name: "LogSend", Group: "a", ModuleName: "Logger",
					Input: []spec.InputDescription{{Name: "dest"}, {Name: "count"}}},
			},
			Modules: []spec.AnalysisModule{{Name: "Logger"}},
			Mappings: []specio.MappingDecl{
				{Call: "Send", CalculationName: "LogSend", Order: mapping.Pre, IntraOrder: 0, Inputs: []mapping.Input{
					{Kind: mapping.InputArgument, ArgumentName: "dest"},
					{Kind: mapping.InputArgument, ArgumentName: "count"},
				}},
			},
		}).
		WithLayout("layout.xml", specio.LayoutDocument{
			Layers: []layer.Layer{
				{Order: 0},
				{Order: 1, AssignedModules: []string{"Logger"}},
			},
			Adjacencies: []layer.Adjacency{{From: 0, To: 1}},
		})

	sink := diagnostics.NewSink(0)
	result, err := Run(context.Background(), r, Inputs{
		GTIPath: "gti.xml", LayoutPath: "layout.xml", APIOrAnalysisPaths: []string{"api.xml", "analysis.xml"},
	}, sink)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.LayerCount)
	assert.Equal(t, []string{"api.xml"}, result.APIPaths)
	assert.Equal(t, []string{"analysis.xml"}, result.AnalysisPaths)

	// Layer 1 hosts LogSend; its wrapper document carries the analysis.
	toolSend := findCall(result.Wrapper, 1, "Send")
	require.NotNil(t, toolSend, "layer 1 hosts LogSend and needs a wrapper document")
	require.Len(t, toolSend.PreAnalyses, 1)
	assert.Equal(t, "LogSend", toolSend.PreAnalyses[0].Name)

	// Layer 0 intercepts Send on the application and forwards the record
	// layer 1 dispatches on: dest and count, never the unconsumed tag.
	appSend := findCall(result.Wrapper, 0, "Send")
	require.NotNil(t, appSend, "the application layer wraps Send to originate the record")
	require.Len(t, appSend.ForwardPre, 1)
	var keys []string
	for _, f := range appSend.ForwardPre[0].Fields {
		keys = append(keys, f.Key)
	}
	assert.ElementsMatch(t, []string{"arg:dest", "arg:count"}, keys)
	assert.NotContains(t, keys, "arg:tag")

	foundReceival := false
	for _, d := range result.Receival {
		if d.Layer == 1 {
			foundReceival = true
			require.Len(t, d.Forward, 1)
			assert.Equal(t, "Send", d.Forward[0].Call)
			assert.Equal(t, appSend.ForwardPre[0].RecordUID, d.Forward[0].RecordUID,
				"the record built at layer 0 is the record dispatched at layer 1")
			require.Len(t, d.Forward[0].Analyses, 1)
			assert.Equal(t, "LogSend", d.Forward[0].Analyses[0].Name)
		}
	}
	assert.True(t, foundReceival, "layer 1 receives dest/count forwarded up from the application layer")

	require.Len(t, result.Build.Entries, 3)
}

// A reduction-capable module assigned to two layers is hosted only on
// the lower of the two, and the removed candidate surfaces as a warning,
// not a second placement.
func TestRun_ReductionPlacedAtLowestHostingLayer(t *testing.T) {
	r := fake.New().
		WithGTI("gti.xml", specio.GTIDocument{}).
		WithAPI("api.xml", specio.APIDocument{Calls: []spec.ApiCall{
			{Name: "Send", Group: "p2p", Arguments: []spec.Argument{{Kind: spec.ArgScalar, Name: "dest"}}},
		}}).
		WithAnalyses("analysis.xml", specio.AnalysisDocument{
			Calculations: []spec.Calculation{
				{Kind: spec.KindAnalysis, Name: "CountEvents", Group: "a", ModuleName: "Counter",
					Input: []spec.InputDescription{{Name: "dest"}}},
			},
			Modules: []spec.AnalysisModule{{Name: "Counter", IsReduction: true, Reductions: []string{"CountEvents"}}},
			Mappings: []specio.MappingDecl{
				{Call: "Send", CalculationName: "CountEvents", Order: mapping.Pre, IntraOrder: 0, IsReduction: true,
					Inputs: []mapping.Input{{Kind: mapping.InputArgument, ArgumentName: "dest"}}},
			},
		}).
		WithLayout("layout.xml", specio.LayoutDocument{
			Layers: []layer.Layer{
				{Order: 0},
				{Order: 1, AssignedModules: []string{"Counter"}},
				{Order: 2, AssignedModules: []string{"Counter"}},
			},
			Adjacencies: []layer.Adjacency{{From: 0, To: 1}, {From: 1, To: 2}},
		})

	sink := diagnostics.NewSink(0)
	result, err := Run(context.Background(), r, Inputs{
		GTIPath: "gti.xml", LayoutPath: "layout.xml", APIOrAnalysisPaths: []string{"api.xml", "analysis.xml"},
	}, sink)
	require.NoError(t, err)

	// Below the host (layer 1), the raw input still travels but the
	// forward is guarded by avoid_reducible_forwards.
	appSend := findCall(result.Wrapper, 0, "Send")
	require.NotNil(t, appSend)
	require.Len(t, appSend.ForwardPre, 1)
	assert.True(t, appSend.ForwardPre[0].Guarded, "avoid_reducible_forwards is wired below the reduction host")

	// From the host upward each layer forwards only the reduction result.
	for _, layerOrder := range []int{1, 2} {
		block := findCall(result.Wrapper, layerOrder, "Send")
		require.NotNil(t, block, "layer %d retains CountEvents and needs a wrapper", layerOrder)
		require.NotEmpty(t, block.ForwardPre)
		var keys []string
		for _, f := range block.ForwardPre[0].Fields {
			keys = append(keys, f.Key)
		}
		assert.NotContains(t, keys, "arg:dest", "layer %d forwards the reduction result, not the raw input", layerOrder)
		assert.Contains(t, keys, "reduced:Send:pre")
	}

	var kinds []diagnostics.WarningKind
	for _, w := range result.Warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.Contains(t, kinds, diagnostics.WarningReductionRemoved)
}

// A cyclic layout is rejected outright, before any output is produced.
func TestRun_CyclicLayoutRejected(t *testing.T) {
	r := fake.New().
		WithGTI("gti.xml", specio.GTIDocument{}).
		WithAPI("api.xml", specio.APIDocument{Calls: []spec.ApiCall{{Name: "Send", Group: "p2p"}}}).
		WithAnalyses("analysis.xml", specio.AnalysisDocument{}).
		WithLayout("layout.xml", specio.LayoutDocument{
			Layers: []layer.Layer{{Order: 0}, {Order: 1}, {Order: 2}},
			Adjacencies: []layer.Adjacency{
				{From: 0, To: 1}, {From: 1, To: 2}, {From: 2, To: 1},
			},
		})

	sink := diagnostics.NewSink(0)
	result, err := Run(context.Background(), r, Inputs{
		GTIPath: "gti.xml", LayoutPath: "layout.xml", APIOrAnalysisPaths: []string{"api.xml", "analysis.xml"},
	}, sink)
	require.Error(t, err)
	assert.Nil(t, result)
	_, ok := err.(*diagnostics.LayoutError)
	assert.True(t, ok)
}

// A wrap-across-creating module hosted on a layer without an
// intra-layer communication strategy is rejected.
func TestRun_WrapAcrossWithoutIntraCommRejected(t *testing.T) {
	r := fake.New().
		WithGTI("gti.xml", specio.GTIDocument{}).
		WithAPI("api.xml", specio.APIDocument{Calls: []spec.ApiCall{
			{Name: "Barrier", Group: "coll", WrapAcross: true},
		}}).
		WithAnalyses("analysis.xml", specio.AnalysisDocument{
			Modules: []spec.AnalysisModule{{Name: "BarrierModule", CallsCreated: []string{"Barrier"}}},
		}).
		WithLayout("layout.xml", specio.LayoutDocument{
			Layers: []layer.Layer{
				{Order: 0},
				{Order: 1, AssignedModules: []string{"BarrierModule"}},
			},
			Adjacencies: []layer.Adjacency{{From: 0, To: 1}},
		})

	sink := diagnostics.NewSink(0)
	result, err := Run(context.Background(), r, Inputs{
		GTIPath: "gti.xml", LayoutPath: "layout.xml", APIOrAnalysisPaths: []string{"api.xml", "analysis.xml"},
	}, sink)
	require.Error(t, err)
	assert.Nil(t, result)
	_, ok := err.(*diagnostics.LayoutError)
	assert.True(t, ok)
}

// Accepted path: the same wrap-across module hosted on a layer that
// does declare an intra-layer communication strategy passes the check.
func TestRun_WrapAcrossWithIntraCommAccepted(t *testing.T) {
	r := fake.New().
		WithGTI("gti.xml", specio.GTIDocument{
			Strategies: []spec.CommStrategy{{Kind: spec.StrategyIntra, Name: "SharedMemFanout"}},
		}).
		WithAPI("api.xml", specio.APIDocument{Calls: []spec.ApiCall{
			{Name: "Barrier", Group: "coll", WrapAcross: true},
		}}).
		WithAnalyses("analysis.xml", specio.AnalysisDocument{
			Modules: []spec.AnalysisModule{{Name: "BarrierModule", CallsCreated: []string{"Barrier"}}},
		}).
		WithLayout("layout.xml", specio.LayoutDocument{
			Layers: []layer.Layer{
				{Order: 0},
				{Order: 1, AssignedModules: []string{"BarrierModule"}, IntraComm: "SharedMemFanout"},
			},
			Adjacencies: []layer.Adjacency{{From: 0, To: 1}},
		})

	sink := diagnostics.NewSink(0)
	result, err := Run(context.Background(), r, Inputs{
		GTIPath: "gti.xml", LayoutPath: "layout.xml", APIOrAnalysisPaths: []string{"api.xml", "analysis.xml"},
	}, sink)
	require.NoError(t, err)
	require.NotNil(t, result)
}

// Merge directives reach the module-config emitter: the merged pair
// shares one document with origin stamps on the moved instances.
func TestRun_MergeDirectiveSharesOneConfigDocument(t *testing.T) {
	r := fake.New().
		WithGTI("gti.xml", specio.GTIDocument{}).
		WithAPI("api.xml", specio.APIDocument{Calls: []spec.ApiCall{
			{Name: "Send", Group: "p2p", Arguments: []spec.Argument{{Kind: spec.ArgScalar, Name: "dest"}}},
		}}).
		WithAnalyses("analysis.xml", specio.AnalysisDocument{
			Calculations: []spec.Calculation{
				{Kind: spec.KindAnalysis, Name: "LogSend", Group: "a", ModuleName: "Logger",
					Input: []spec.InputDescription{{Name: "dest"}}},
			},
			Modules: []spec.AnalysisModule{{Name: "Logger"}},
			Mappings: []specio.MappingDecl{
				{Call: "Send", CalculationName: "LogSend", Order: mapping.Pre, Inputs: []mapping.Input{
					{Kind: mapping.InputArgument, ArgumentName: "dest"},
				}},
			},
		}).
		WithLayout("layout.xml", specio.LayoutDocument{
			Layers: []layer.Layer{
				{Order: 0},
				{Order: 1, AssignedModules: []string{"Logger"}},
				{Order: 2, AssignedModules: []string{"Logger"}},
			},
			Adjacencies: []layer.Adjacency{{From: 0, To: 1}, {From: 1, To: 2}},
			Merges:      []layer.Merge{{High: 2, Low: 1}},
		})

	sink := diagnostics.NewSink(0)
	result, err := Run(context.Background(), r, Inputs{
		GTIPath: "gti.xml", LayoutPath: "layout.xml", APIOrAnalysisPaths: []string{"api.xml", "analysis.xml"},
	}, sink)
	require.NoError(t, err)

	var layers []int
	for _, cfg := range result.ModuleConfig {
		layers = append(layers, cfg.Layer)
	}
	assert.ElementsMatch(t, []int{0, 1}, layers, "layer 2's document is folded into layer 1's")
}

// Solving the same input twice produces byte-identical generator output.
func TestRun_StableAcrossRepeatedRuns(t *testing.T) {
	build := func() *fake.Reader {
		return fake.New().
			WithGTI("gti.xml", specio.GTIDocument{}).
			WithAPI("api.xml", specio.APIDocument{Calls: []spec.ApiCall{
				{Name: "Send", Group: "p2p", Arguments: []spec.Argument{{Kind: spec.ArgScalar, Name: "dest"}}},
			}}).
			WithAnalyses("analysis.xml", specio.AnalysisDocument{
				Calculations: []spec.Calculation{
					{Kind: spec.KindAnalysis, Name: "LogSend", Group: "a", ModuleName: "Logger",
						Input: []spec.InputDescription{{Name: "dest"}}},
				},
				Modules: []spec.AnalysisModule{{Name: "Logger"}},
				Mappings: []specio.MappingDecl{
					{Call: "Send", CalculationName: "LogSend", Order: mapping.Pre, IntraOrder: 0, Inputs: []mapping.Input{
						{Kind: mapping.InputArgument, ArgumentName: "dest"},
					}},
				},
			}).
			WithLayout("layout.xml", specio.LayoutDocument{
				Layers:      []layer.Layer{{Order: 0}, {Order: 1, AssignedModules: []string{"Logger"}}},
				Adjacencies: []layer.Adjacency{{From: 0, To: 1}},
			})
	}

	in := Inputs{GTIPath: "gti.xml", LayoutPath: "layout.xml", APIOrAnalysisPaths: []string{"api.xml", "analysis.xml"}}
	first, err := Run(context.Background(), build(), in, diagnostics.NewSink(0))
	require.NoError(t, err)
	second, err := Run(context.Background(), build(), in, diagnostics.NewSink(0))
	require.NoError(t, err)

	render := func(res *Result) string {
		w, err := wrapper.Render(res.Wrapper)
		require.NoError(t, err)
		b, err := res.Build.Render()
		require.NoError(t, err)
		return string(w) + string(b)
	}
	assert.Equal(t, render(first), render(second))
	assert.Equal(t, len(first.Receival), len(second.Receival))
	assert.Equal(t, len(first.ModuleConfig), len(second.ModuleConfig))
}

// Implicit GTI-internal specs are read ahead of the user-supplied files;
// unknown implicit paths are skipped rather than fatal.
func TestRun_ImplicitSpecsPrependedWhenPresent(t *testing.T) {
	r := fake.New().
		WithGTI("gti.xml", specio.GTIDocument{}).
		WithAPI("internal_api.xml", specio.APIDocument{Calls: []spec.ApiCall{
			{Name: "ShutdownNotify", Group: "gti", IsFinalizer: true},
		}}).
		WithAPI("api.xml", specio.APIDocument{Calls: []spec.ApiCall{
			{Name: "Send", Group: "p2p", Arguments: []spec.Argument{{Kind: spec.ArgScalar, Name: "dest"}}},
		}}).
		WithAnalyses("analysis.xml", specio.AnalysisDocument{}).
		WithLayout("layout.xml", specio.LayoutDocument{
			Layers:      []layer.Layer{{Order: 0}, {Order: 1}},
			Adjacencies: []layer.Adjacency{{From: 0, To: 1}},
		})

	sink := diagnostics.NewSink(0)
	result, err := Run(context.Background(), r, Inputs{
		GTIPath: "gti.xml", LayoutPath: "layout.xml",
		APIOrAnalysisPaths: []string{"api.xml", "analysis.xml"},
		ImplicitPaths:      []string{"internal_api.xml", "missing_internal_analyses.xml"},
	}, sink)
	require.NoError(t, err)
	assert.Equal(t, []string{"internal_api.xml", "api.xml"}, result.APIPaths,
		"the implicit API spec is read first; the unknown implicit path is skipped")

	// The finalizer from the internal spec is received on the tool layer
	// even though nothing consumes its (absent) arguments.
	foundFinalize := false
	for _, d := range result.Receival {
		if d.Layer != 1 {
			continue
		}
		for _, h := range d.Forward {
			if h.Call == "ShutdownNotify" {
				foundFinalize = true
			}
		}
	}
	assert.True(t, foundFinalize)
}
