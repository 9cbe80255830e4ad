package receival

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/weaver/internal/channelid"
	"github.com/viant/weaver/internal/layer"
	"github.com/viant/weaver/internal/mapping"
	"github.com/viant/weaver/internal/solver"
)

func buildGraph(t *testing.T) *layer.Graph {
	t.Helper()
	g := layer.NewGraph()
	require.NoError(t, g.AddLayer(&layer.Layer{Order: 0}))
	require.NoError(t, g.AddLayer(&layer.Layer{Order: 1, IntraComm: "SharedMem"}))
	require.NoError(t, g.AddLayer(&layer.Layer{Order: 2}))
	require.NoError(t, g.AddAdjacency(&layer.Adjacency{From: 0, To: 1, Strategy: "TcpTree"}))
	require.NoError(t, g.AddAdjacency(&layer.Adjacency{From: 1, To: 2, Strategy: "TcpTree"}))
	g.ReduceToTree()
	return g
}

func propsWith(layerOrder int, call string, ord mapping.Order, uid uint64, keys []string, needsReceival bool) *solver.CallProperties {
	set := solver.NewInputSet()
	for _, k := range keys {
		set.Add(mapping.Input{Kind: mapping.InputArgument, ArgumentName: k[len("arg:"):]})
	}
	return &solver.CallProperties{
		Layer:         layerOrder,
		Call:          call,
		Order:         ord,
		ArgsToReceive: set,
		InRecordUID:   uid,
		NeedsReceival: needsReceival,
		AnalysesToExecute: []solver.AnalysisExec{
			{AnalysisName: "Check" + call, MappingID: 0},
		},
	}
}

func TestGenerator_Generate_SkipsTriplesThatDoNotNeedReceival(t *testing.T) {
	gen := New(channelid.Compute(2, 2), buildGraph(t))

	props := []*solver.CallProperties{
		propsWith(0, "Recv", mapping.Pre, 0, nil, false),
	}
	docs := gen.Generate(props, nil, nil)
	assert.Empty(t, docs, "a triple that receives nothing produces no handler and no document")
}

func TestGenerator_Generate_SplitsForwardIntraAndDown(t *testing.T) {
	gen := New(channelid.Compute(2, 2), buildGraph(t))

	props := []*solver.CallProperties{
		propsWith(1, "Send", mapping.Pre, 1, []string{"arg:dest"}, true),
		propsWith(1, "Bcast", mapping.Pre, 2, []string{"arg:root"}, true),
		propsWith(1, "Barrier", mapping.Pre, 3, []string{"arg:comm"}, true),
	}
	wrapDown := map[string]bool{"Bcast": true}
	wrapAcross := map[string]bool{"Barrier": true}

	docs := gen.Generate(props, wrapDown, wrapAcross)
	require.Len(t, docs, 1)
	doc := docs[0]
	assert.Equal(t, 1, doc.Layer)

	require.Len(t, doc.Forward, 1)
	assert.Equal(t, "Send", doc.Forward[0].Call)
	require.Len(t, doc.Forward[0].Analyses, 1)
	assert.Equal(t, "CheckSend", doc.Forward[0].Analyses[0].Name)
	require.Len(t, doc.Intra, 1)
	assert.Equal(t, "Barrier", doc.Intra[0].Call)
	require.Len(t, doc.Down, 1)
	assert.Equal(t, "Bcast", doc.Down[0].Call)
}

func TestGenerator_ChannelPlanCarriesLayerPosition(t *testing.T) {
	plan := channelid.Compute(4, 2)
	gen := New(plan, buildGraph(t))

	props := []*solver.CallProperties{
		propsWith(2, "Send", mapping.Pre, 1, []string{"arg:dest"}, true),
	}
	docs := gen.Generate(props, nil, nil)
	require.Len(t, docs, 1)

	cp := docs[0].ChannelPlan
	assert.Equal(t, 2, cp.FromLevel)
	assert.Equal(t, plan.Depth+1, cp.NumLevels)
	assert.Equal(t, plan.NumWords, cp.NumWords)
	assert.Equal(t, plan.BitsPerSubID, cp.BitsPerChannel)
	assert.Equal(t, "weaver_channel_id", cp.BaseArgName)
	assert.Equal(t, 0, cp.StartIndexPre)
	assert.Equal(t, 1<<uint(plan.BitsPerSubID-1), cp.StartIndexPost,
		"post dispatch range starts where the leaf sub-field's marker bit flips")
}

func TestGenerator_RoutingsFollowLayerEdges(t *testing.T) {
	gen := New(channelid.Compute(2, 2), buildGraph(t))

	props := []*solver.CallProperties{
		propsWith(1, "Send", mapping.Pre, 1, []string{"arg:dest"}, true),
	}
	docs := gen.Generate(props, nil, nil)
	require.Len(t, docs, 1)

	var kinds []string
	for _, r := range docs[0].Routings {
		kinds = append(kinds, r.Kind)
	}
	assert.ElementsMatch(t, []string{"forward", "intra", "down"}, kinds)
	for _, r := range docs[0].Routings {
		switch r.Kind {
		case "forward":
			assert.Equal(t, 2, r.ToLevel)
		case "down":
			assert.Equal(t, 0, r.ToLevel)
		case "intra":
			assert.Equal(t, 1, r.ToLevel)
			assert.Equal(t, "SharedMem", r.Strategy)
		}
	}
}

func TestGenerator_HandlersSortedByRecordUIDThenCall(t *testing.T) {
	gen := New(channelid.Compute(2, 2), buildGraph(t))

	props := []*solver.CallProperties{
		propsWith(1, "Zeta", mapping.Pre, 5, []string{"arg:a"}, true),
		propsWith(1, "Alpha", mapping.Pre, 1, []string{"arg:b"}, true),
		propsWith(1, "Beta", mapping.Pre, 1, []string{"arg:c"}, true),
	}
	docs := gen.Generate(props, nil, nil)
	require.Len(t, docs, 1)
	require.Len(t, docs[0].Forward, 3)
	assert.Equal(t, "Alpha", docs[0].Forward[0].Call)
	assert.Equal(t, "Beta", docs[0].Forward[1].Call)
	assert.Equal(t, "Zeta", docs[0].Forward[2].Call)
}

func TestRender_ProducesValidXML(t *testing.T) {
	gen := New(channelid.Compute(2, 2), buildGraph(t))
	props := []*solver.CallProperties{
		propsWith(1, "Send", mapping.Pre, 1, []string{"arg:dest"}, true),
	}
	out, err := Render(gen.Generate(props, nil, nil))
	require.NoError(t, err)
	assert.Contains(t, string(out), "<receivals>")
	assert.Contains(t, string(out), "base_arg_name=\"weaver_channel_id\"")
}
