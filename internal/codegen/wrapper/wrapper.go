// Package wrapper implements the wrapper generator: for every layer
// that intercepts calls, it emits the XML "generator input" document
// describing the pre-ops, pre-analyses, record construction and
// forwarding, delegate call, post mirror and cleanup a downstream code
// generator must wire up, plus the layer's settings, headers,
// communications and analysis declarations.
package wrapper

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"

	"github.com/viant/weaver/internal/codegen/template"
	"github.com/viant/weaver/internal/layer"
	"github.com/viant/weaver/internal/mapping"
	"github.com/viant/weaver/internal/reduction"
	"github.com/viant/weaver/internal/solver"
	"github.com/viant/weaver/internal/spec"
)

// Settings names the source, header and log file the downstream wrapper
// generator writes for this layer. The log file records which analyses
// were wired to which calls.
type Settings struct {
	SourceFile string `xml:"source_file,attr"`
	HeaderFile string `xml:"header_file,attr"`
	LogFile    string `xml:"log_file,attr"`
}

// Communication is one outgoing channel of the layer: an inter-layer
// adjacency resolved to its strategy's up/down module pair, or the
// layer's intra-communication.
type Communication struct {
	ID         int    `xml:"id,attr"`
	ToLevel    int    `xml:"to_level,attr"`
	Strategy   string `xml:"strategy,attr"`
	UpModule   string `xml:"up_module,attr,omitempty"`
	DownModule string `xml:"down_module,attr,omitempty"`
	Intra      bool   `xml:"intra,attr,omitempty"`
}

// AnalysisDecl declares one analysis function the layer's wrapper invokes,
// with the module instance it lives on.
type AnalysisDecl struct {
	ID       int    `xml:"id,attr"`
	Name     string `xml:"name,attr"`
	Module   string `xml:"module,attr"`
	Function string `xml:"function,attr,omitempty"`
}

// OpStep is one scheduled operation invocation, source-rendered with its
// result/length variable names already substituted.
type OpStep struct {
	Name      string `xml:"name,attr"`
	MappingID int    `xml:"mapping_id,attr"`
	ResultVar string `xml:"result_var,attr"`
	LengthVar string `xml:"length_var,attr,omitempty"`
	Source    string `xml:"source"`
}

// AnalysisStep is one scheduled analysis invocation.
type AnalysisStep struct {
	Name      string   `xml:"name,attr"`
	Module    string   `xml:"module,attr"`
	MappingID int      `xml:"mapping_id,attr"`
	Args      []string `xml:"arg"`
}

// Field is one entry of the record this layer constructs to forward.
type Field struct {
	Key   string `xml:"key,attr"`
	Label string `xml:",chardata"`
}

// Forwarding is the record construction and emission over one outgoing
// channel: the target's record uid, the channel to emit on, and the
// ordered field list. Guarded forwardings are wrapped in the runtime
// avoid_reducible_forwards check, set once a reducer upstream has
// absorbed the event.
type Forwarding struct {
	RecordUID uint64  `xml:"record_uid,attr"`
	CommID    int     `xml:"comm,attr"`
	Guarded   bool    `xml:"avoid_reducible_forwards,attr,omitempty"`
	Fields    []Field `xml:"field"`
}

// CallBlock is the per-call body of the layer's wrapper document.
type CallBlock struct {
	Name   string `xml:"name,attr"`
	Group  string `xml:"group,attr"`
	CallID int    `xml:"call_id,attr"`

	PreOps      []OpStep       `xml:"pre_ops>op,omitempty"`
	PreAnalyses []AnalysisStep `xml:"pre_analyses>analysis,omitempty"`
	ForwardPre  []Forwarding   `xml:"forward_pre>forwarding,omitempty"`

	Delegate bool `xml:"delegate,attr"`

	PostOps      []OpStep       `xml:"post_ops>op,omitempty"`
	PostAnalyses []AnalysisStep `xml:"post_analyses>analysis,omitempty"`
	ForwardPost  []Forwarding   `xml:"forward_post>forwarding,omitempty"`

	// Cleanup runs each acquired operation's cleanup template in reverse
	// order of acquisition: post ops unwound first, then pre ops.
	Cleanup []OpStep `xml:"cleanup>op,omitempty"`
}

// Document is one layer's wrapper generator input.
type Document struct {
	XMLName        xml.Name        `xml:"wrapper"`
	Layer          int             `xml:"layer,attr"`
	Settings       Settings        `xml:"settings"`
	Headers        []string        `xml:"headers>header,omitempty"`
	Communications []Communication `xml:"communications>communication,omitempty"`
	Analyses       []AnalysisDecl  `xml:"analyses>analysis,omitempty"`
	Calls          []CallBlock     `xml:"calls>call"`
}

// Generator builds wrapper documents from solved call properties.
type Generator struct {
	registry   *spec.Registry
	model      *mapping.Model
	graph      *layer.Graph
	placements map[string]reduction.Placement // call+"/"+order -> placement
}

// New creates a Generator. placements may be nil if C6 produced none.
func New(registry *spec.Registry, model *mapping.Model, g *layer.Graph, placements []reduction.Placement) *Generator {
	byKey := map[string]reduction.Placement{}
	for _, p := range placements {
		byKey[p.Call+"/"+string(p.Order)] = p
	}
	return &Generator{registry: registry, model: model, graph: g, placements: byKey}
}

// Generate produces one Document per layer with at least one call whose
// pre or post side needs a wrapper there.
func (g *Generator) Generate(props []*solver.CallProperties) []Document {
	byLayerCall := map[int]map[string]map[mapping.Order]*solver.CallProperties{}
	for _, p := range props {
		if byLayerCall[p.Layer] == nil {
			byLayerCall[p.Layer] = map[string]map[mapping.Order]*solver.CallProperties{}
		}
		if byLayerCall[p.Layer][p.Call] == nil {
			byLayerCall[p.Layer][p.Call] = map[mapping.Order]*solver.CallProperties{}
		}
		byLayerCall[p.Layer][p.Call][p.Order] = p
	}

	var docs []Document
	for layerOrder, byCall := range byLayerCall {
		comms, commID := g.communications(layerOrder)
		doc := Document{
			Layer: layerOrder,
			Settings: Settings{
				SourceFile: fmt.Sprintf("wrapper_layer_%d.cc", layerOrder),
				HeaderFile: fmt.Sprintf("wrapper_layer_%d.h", layerOrder),
				LogFile:    fmt.Sprintf("wrapper_layer_%d.log", layerOrder),
			},
			Communications: comms,
		}
		headers := map[string]bool{}
		analyses := map[string]AnalysisDecl{}

		callNames := make([]string, 0, len(byCall))
		for name := range byCall {
			callNames = append(callNames, name)
		}
		sort.Strings(callNames)

		for _, callName := range callNames {
			byOrder := byCall[callName]
			pre := byOrder[mapping.Pre]
			post := byOrder[mapping.Post]
			if !(pre != nil && pre.NeedsWrapper) && !(post != nil && post.NeedsWrapper) {
				continue
			}
			call, ok := g.registry.CallByName(callName)
			if !ok {
				continue
			}
			doc.Calls = append(doc.Calls, g.callBlock(call, pre, post, commID, headers, analyses))
		}
		if len(doc.Calls) == 0 {
			continue
		}

		for h := range headers {
			doc.Headers = append(doc.Headers, h)
		}
		sort.Strings(doc.Headers)
		names := make([]string, 0, len(analyses))
		for n := range analyses {
			names = append(names, n)
		}
		sort.Strings(names)
		for i, n := range names {
			decl := analyses[n]
			decl.ID = i
			doc.Analyses = append(doc.Analyses, decl)
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Layer < docs[j].Layer })
	return docs
}

// communications lists the layer's channels: every out-edge of the
// reduced tree, the in-edges (used as down channels by wrap_down calls),
// then the intra-communication when one is declared. The returned map
// resolves a target ("to:<level>" or "intra") to the channel's id.
func (g *Generator) communications(layerOrder int) ([]Communication, map[string]int) {
	ids := map[string]int{}
	var out []Communication
	l, ok := g.graph.Layer(layerOrder)
	if !ok {
		return nil, ids
	}
	appendEdge := func(toLevel int, strategy string) {
		c := Communication{ID: len(out), ToLevel: toLevel, Strategy: strategy}
		if strat, found := g.registry.Strategy(strategy); found {
			c.UpModule = strat.UpModule
			c.DownModule = strat.DownModule
		}
		ids[fmt.Sprintf("to:%d", toLevel)] = c.ID
		out = append(out, c)
	}
	for _, e := range l.OutEdges {
		appendEdge(e.To, e.Strategy)
	}
	for _, e := range l.InEdges {
		appendEdge(e.From, e.Strategy)
	}
	if l.IntraComm != "" {
		c := Communication{ID: len(out), ToLevel: layerOrder, Strategy: l.IntraComm, Intra: true}
		if strat, found := g.registry.Strategy(l.IntraComm); found {
			c.UpModule = strat.IntraModule
		}
		ids["intra"] = c.ID
		out = append(out, c)
	}
	return out, ids
}

func (g *Generator) callBlock(call *spec.ApiCall, pre, post *solver.CallProperties, commID map[string]int, headers map[string]bool, analyses map[string]AnalysisDecl) CallBlock {
	block := CallBlock{Name: call.Name, Group: call.Group, CallID: call.ID, Delegate: !call.IsHook}
	if pre != nil {
		block.PreOps = g.opSteps(call.Name, pre.OpsToExecute, headers)
		block.PreAnalyses = g.analysisSteps(call.Name, pre.AnalysesToExecute, analyses)
		block.ForwardPre = g.forwardings(call, mapping.Pre, pre, commID)
	}
	if post != nil {
		block.PostOps = g.opSteps(call.Name, post.OpsToExecute, headers)
		block.PostAnalyses = g.analysisSteps(call.Name, post.AnalysesToExecute, analyses)
		block.ForwardPost = g.forwardings(call, mapping.Post, post, commID)
	}
	block.Cleanup = g.cleanupSteps(call.Name, block.PreOps, block.PostOps)
	return block
}

// resultVar names the variable holding an operation instance's result;
// the mapping id keeps it unique when the same operation is mapped to the
// same call more than once.
func resultVar(opName string, mappingID int) string {
	return fmt.Sprintf("%s_%d_result", opName, mappingID)
}

func lengthVar(opName string, mappingID int) string {
	return fmt.Sprintf("%s_%d_len", opName, mappingID)
}

func (g *Generator) opSteps(callName string, ops []solver.OpExec, headers map[string]bool) []OpStep {
	var out []OpStep
	for _, op := range ops {
		calc, ok := g.registry.Calculation(op.OperationName)
		if !ok {
			continue
		}
		for _, h := range calc.Headers {
			headers[h] = true
		}
		mp := g.findMapping(callName, op.OperationName, op.MappingID)
		step := OpStep{
			Name:      op.OperationName,
			MappingID: op.MappingID,
			ResultVar: resultVar(op.OperationName, op.MappingID),
		}
		if calc.ReturnIsArray {
			step.LengthVar = lengthVar(op.OperationName, op.MappingID)
		}
		step.Source = template.Render(calc.SourceTemplate, inputLabels(mp),
			step.ResultVar, step.LengthVar, strconv.Itoa(op.MappingID))
		out = append(out, step)
	}
	return out
}

// cleanupSteps renders each acquired operation's cleanup template in
// reverse order of acquisition.
func (g *Generator) cleanupSteps(callName string, preOps, postOps []OpStep) []OpStep {
	acquired := append(append([]OpStep(nil), preOps...), postOps...)
	var out []OpStep
	for i := len(acquired) - 1; i >= 0; i-- {
		step := acquired[i]
		calc, ok := g.registry.Calculation(step.Name)
		if !ok || calc.CleanupTemplate == "" {
			continue
		}
		mp := g.findMapping(callName, step.Name, step.MappingID)
		out = append(out, OpStep{
			Name:      step.Name,
			MappingID: step.MappingID,
			ResultVar: step.ResultVar,
			LengthVar: step.LengthVar,
			Source: template.Render(calc.CleanupTemplate, inputLabels(mp),
				step.ResultVar, step.LengthVar, strconv.Itoa(step.MappingID)),
		})
	}
	return out
}

func (g *Generator) analysisSteps(callName string, execs []solver.AnalysisExec, analyses map[string]AnalysisDecl) []AnalysisStep {
	var out []AnalysisStep
	for _, a := range execs {
		calc, ok := g.registry.Calculation(a.AnalysisName)
		if !ok {
			continue
		}
		analyses[a.AnalysisName] = AnalysisDecl{Name: a.AnalysisName, Module: calc.ModuleName, Function: calc.FunctionName}
		mp := g.findMapping(callName, a.AnalysisName, a.MappingID)
		out = append(out, AnalysisStep{
			Name:      a.AnalysisName,
			Module:    calc.ModuleName,
			MappingID: a.MappingID,
			Args:      inputLabels(mp),
		})
	}
	return out
}

// forwardings lists the record construction per outgoing channel, with
// avoid_reducible_forwards: below the reduction's host layer the raw
// forward is guarded at run time; from the host upward the inputs the
// reduction consumed are hidden and replaced by one synthetic reduced
// field.
func (g *Generator) forwardings(call *spec.ApiCall, ord mapping.Order, p *solver.CallProperties, commID map[string]int) []Forwarding {
	placement, hasReduction := g.placements[call.Name+"/"+string(ord)]
	reduced := hasReduction && placement.HostLayer <= p.Layer
	if p.OutboundArgs.Len() == 0 && !reduced {
		return nil
	}

	hidden := map[string]bool{}
	if reduced {
		if mp := g.findReductionMapping(call.Name, placement.MappingID); mp != nil {
			for _, in := range mp.Inputs {
				hidden[in.Key()] = true
			}
		}
	}
	var fields []Field
	for _, in := range p.OutboundArgs.Items() {
		if hidden[in.Key()] {
			continue
		}
		fields = append(fields, Field{Key: in.Key(), Label: in.DisplayName()})
	}
	if reduced {
		fields = append(fields, Field{Key: fmt.Sprintf("reduced:%s:%s", call.Name, ord), Label: "reduction result"})
	}

	guarded := hasReduction && placement.HostLayer > p.Layer

	var out []Forwarding
	for _, target := range g.outgoingTargets(call, p.Layer) {
		id, ok := commID[target]
		if !ok {
			continue
		}
		out = append(out, Forwarding{RecordUID: p.OutRecordUID, CommID: id, Guarded: guarded, Fields: fields})
	}
	if len(out) == 0 && len(fields) > 0 {
		// No resolvable channel (the front-end root still folds a final
		// reduction result): keep the record shape visible with no comm.
		out = append(out, Forwarding{RecordUID: p.OutRecordUID, CommID: -1, Guarded: guarded, Fields: fields})
	}
	return out
}

// outgoingTargets resolves where this layer emits the call's records: the
// tree's forward target for normal calls, every feed source for a
// wrap_down call, the intra channel for a wrap_across call.
func (g *Generator) outgoingTargets(call *spec.ApiCall, layerOrder int) []string {
	if call.WrapAcross {
		return []string{"intra"}
	}
	var levels []int
	if call.WrapDown {
		levels = g.graph.FeedSources(layerOrder)
	} else {
		levels = g.graph.ForwardTargets(layerOrder)
	}
	sort.Ints(levels)
	out := make([]string, 0, len(levels))
	for _, lv := range levels {
		out = append(out, fmt.Sprintf("to:%d", lv))
	}
	return out
}

func (g *Generator) findMapping(callName, calcName string, mappingID int) *mapping.Mapping {
	for _, mp := range g.model.MappingsForCall(calcName, callName) {
		if mp.ID == mappingID {
			return mp
		}
	}
	return nil
}

func (g *Generator) findReductionMapping(callName string, mappingID int) *mapping.Mapping {
	for _, ord := range []mapping.Order{mapping.Pre, mapping.Post} {
		for _, mp := range g.model.MappingsOf(callName, ord) {
			if mp.IsReduction && mp.ID == mappingID {
				return mp
			}
		}
	}
	return nil
}

func inputLabels(mp *mapping.Mapping) []string {
	if mp == nil {
		return nil
	}
	labels := make([]string, len(mp.Inputs))
	for i, in := range mp.Inputs {
		labels[i] = in.DisplayName()
	}
	return labels
}

// Render marshals docs as an indented XML document for --verbose dumps and
// driver output.
func Render(docs []Document) ([]byte, error) {
	type wrapperSet struct {
		XMLName xml.Name   `xml:"wrappers"`
		Items   []Document `xml:"wrapper"`
	}
	return xml.MarshalIndent(wrapperSet{Items: docs}, "", "  ")
}
