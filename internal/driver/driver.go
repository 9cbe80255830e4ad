// Package driver composes the whole pipeline into the single weave pass
// the CLI (cmd/weaver) drives: it reads the four input specs, builds the
// registry/mapping model/layer graph, runs the call-properties solver, the
// reduction placer and the automagic inclusion pass, then invokes the
// three code generators and assembles the build aggregator.
package driver

import (
	"context"
	"fmt"
	"sort"

	"github.com/viant/weaver/internal/automagic"
	"github.com/viant/weaver/internal/channelid"
	"github.com/viant/weaver/internal/codegen/moduleconfig"
	"github.com/viant/weaver/internal/codegen/receival"
	"github.com/viant/weaver/internal/codegen/wrapper"
	"github.com/viant/weaver/internal/diagnostics"
	"github.com/viant/weaver/internal/layer"
	"github.com/viant/weaver/internal/mapping"
	"github.com/viant/weaver/internal/reduction"
	"github.com/viant/weaver/internal/solver"
	"github.com/viant/weaver/internal/spec"
	"github.com/viant/weaver/internal/specio"
)

// Inputs names the weave's input files, matching the CLI surface:
// one layout file, one GTI file, and one or more API-or-analysis files.
// ImplicitPaths are the GTI-internal API and analysis specs a deployment
// always prepends ahead of the user-supplied files; paths the reader does
// not know are skipped silently, so a bare test reader needs none.
type Inputs struct {
	LayoutPath         string
	GTIPath            string
	APIOrAnalysisPaths []string
	ImplicitPaths      []string
}

// Run executes one full weave pass against reader and returns the
// generated documents, or the first fatal error encountered. Non-fatal
// conditions are recorded on sink and also returned in Result.Warnings.
func Run(ctx context.Context, reader specio.Reader, in Inputs, sink *diagnostics.Sink) (*Result, error) {
	registry := spec.NewRegistry()
	graph := layer.NewGraph()

	gtiDoc, err := reader.ReadGTI(ctx, in.GTIPath)
	if err != nil {
		return nil, err
	}
	if err := spec.CheckFormatVersion(gtiDoc.FormatVersion); err != nil {
		return nil, err
	}
	for i := range gtiDoc.Modules {
		if err := registry.AddModule(&gtiDoc.Modules[i]); err != nil {
			return nil, err
		}
	}
	for i := range gtiDoc.Strategies {
		if err := registry.AddStrategy(&gtiDoc.Strategies[i]); err != nil {
			return nil, err
		}
	}
	for i := range gtiDoc.Protocols {
		if err := registry.AddProtocol(&gtiDoc.Protocols[i]); err != nil {
			return nil, err
		}
	}
	for i := range gtiDoc.Places {
		if err := registry.AddPlace(&gtiDoc.Places[i]); err != nil {
			return nil, err
		}
	}
	for _, e := range gtiDoc.Enumerations {
		if err := registry.AddEnumeration(e); err != nil {
			return nil, err
		}
	}

	layoutDoc, err := reader.ReadLayout(ctx, in.LayoutPath)
	if err != nil {
		return nil, err
	}
	for i := range layoutDoc.Layers {
		l := layoutDoc.Layers[i]
		if err := graph.AddLayer(&l); err != nil {
			return nil, err
		}
	}
	for i := range layoutDoc.Adjacencies {
		if err := graph.AddAdjacency(&layoutDoc.Adjacencies[i]); err != nil {
			return nil, err
		}
	}

	model := mapping.NewModel(registry, sink)
	var mappingDecls []specio.MappingDecl
	var apiPaths, analysisPaths []string

	readSpec := func(path string, implicit bool) error {
		apiDoc, apiErr := reader.ReadAPI(ctx, path)
		if apiErr == nil {
			apiPaths = append(apiPaths, path)
			for i := range apiDoc.Calls {
				if err := registry.AddCall(&apiDoc.Calls[i]); err != nil {
					return err
				}
			}
			return nil
		}
		analysisDoc, err := reader.ReadAnalyses(ctx, path)
		if err != nil {
			if implicit {
				// Implicit GTI-internal specs are prepended on every run;
				// a deployment without them simply has none to load.
				return nil
			}
			return diagnostics.NewParseError(path, "not a valid API or analyses spec file", err)
		}
		analysisPaths = append(analysisPaths, path)
		if err := spec.CheckFormatVersion(analysisDoc.FormatVersion); err != nil {
			return err
		}
		for i := range analysisDoc.Calculations {
			if err := registry.AddCalculation(&analysisDoc.Calculations[i]); err != nil {
				return err
			}
		}
		for i := range analysisDoc.Modules {
			if err := registry.AddAnalysisModule(&analysisDoc.Modules[i]); err != nil {
				return err
			}
		}
		mappingDecls = append(mappingDecls, analysisDoc.Mappings...)
		return nil
	}

	for _, path := range in.ImplicitPaths {
		if err := readSpec(path, true); err != nil {
			return nil, err
		}
	}
	for _, path := range in.APIOrAnalysisPaths {
		if err := readSpec(path, false); err != nil {
			return nil, err
		}
	}

	if err := registry.Load(); err != nil {
		return nil, err
	}

	for _, decl := range mappingDecls {
		var id int
		var err error
		if decl.IsOperation {
			id, err = model.AttachOperation(decl.Call, decl.CalculationName, decl.Order, decl.Inputs, decl.IntraOrder)
		} else {
			id, err = model.AttachAnalysis(decl.Call, decl.CalculationName, decl.Order, decl.Inputs, decl.IntraOrder)
		}
		if err != nil {
			return nil, err
		}
		if decl.IsReduction {
			for _, mp := range model.MappingsOf(decl.Call, decl.Order) {
				if mp.CalculationName == decl.CalculationName && mp.ID == id {
					model.MarkReduction(mp)
				}
			}
		}
	}
	sink.Flush("mapping")

	if err := graph.CheckAcyclic(); err != nil {
		return nil, err
	}
	if err := graph.CheckReachability(); err != nil {
		return nil, err
	}
	graph.ReduceToTree()

	wrapDown := map[string]bool{}
	wrapAcross := map[string]bool{}
	wrapAcrossModulesByLayer := map[int]map[string]bool{}
	for _, l := range graph.Layers() {
		set := map[string]bool{}
		for _, m := range l.AssignedModules {
			set[m] = true
		}
		wrapAcrossModulesByLayer[l.Order] = set
	}
	for _, call := range registry.Calls() {
		if call.WrapDown {
			wrapDown[call.Name] = true
		}
		if call.WrapAcross {
			wrapAcross[call.Name] = true
		}
	}
	if err := graph.CheckWrapAcrossUsage(func(order int) bool {
		assigned := wrapAcrossModulesByLayer[order]
		for _, call := range registry.Calls() {
			if !call.WrapAcross {
				continue
			}
			for _, m := range registry.AnalysisModules() {
				if !assigned[m.Name] {
					continue
				}
				for _, created := range m.CallsCreated {
					if created == call.Name {
						return true
					}
				}
			}
		}
		return false
	}); err != nil {
		return nil, err
	}

	plan := channelid.Compute(graph.MaxFanIn(), graph.Depth())
	if !plan.Sufficient() {
		return nil, diagnostics.NewLayoutError(fmt.Sprintf(
			"channel-id plan is insufficient for fan-in %d / depth %d (bits_per_sub_id=%d, num_words=%d)",
			plan.MaxFanIn, plan.Depth, plan.BitsPerSubID, plan.NumWords))
	}

	s := solver.New(registry, model, graph, sink)
	props, err := s.Solve()
	if err != nil {
		return nil, err
	}
	sink.Flush("solve")

	placer := reduction.New(registry, model, graph, sink)
	placements, err := placer.Place()
	if err != nil {
		return nil, err
	}
	sink.Flush("reduction")

	// Automagic module inclusion never grows what a layer needs to
	// receive, so a single extra solve pass after it is enough to
	// pick up the newly assigned analyses' schedules; no further fixed
	// point across solve/automagic is needed.
	if additions := automagic.Include(registry, model, graph, props); len(additions) > 0 {
		props, err = s.Solve()
		if err != nil {
			return nil, err
		}
	}

	wrapperGen := wrapper.New(registry, model, graph, placements)
	wrapperDocs := wrapperGen.Generate(props)

	receivalGen := receival.New(plan, graph)
	receivalDocs := receivalGen.Generate(props, wrapDown, wrapAcross)

	moduleConfigGen := moduleconfig.New(registry)
	moduleConfigs := moduleConfigGen.Generate(graph, props, layoutDoc.Merges)

	build := buildDocument(wrapperDocs, receivalDocs, moduleConfigs)

	sink.Flush("weave")

	return &Result{
		Wrapper:       wrapperDocs,
		Receival:      receivalDocs,
		ModuleConfig:  moduleConfigs,
		Build:         build,
		Warnings:      sink.Warnings(),
		APIPaths:      apiPaths,
		AnalysisPaths: analysisPaths,
		LayerCount:    len(graph.Layers()),
	}, nil
}

// OutputFileNames are the fixed names the three generators' bundled XML
// documents are written under, plus the build aggregator.
const (
	WrapperFileName      = "wrapper.xml"
	ReceivalFileName     = "receival.xml"
	ModuleConfigFileName = "moduleconfig.xml"
	BuildFileName        = "build.xml"
)

func buildDocument(wrapperDocs []wrapper.Document, receivalDocs []receival.Document, moduleConfigs []moduleconfig.LayerConfig) Build {
	var entries []BuildEntry
	if len(wrapperDocs) > 0 {
		entries = append(entries, BuildEntry{Kind: "wrapper", Name: WrapperFileName})
	}
	if len(receivalDocs) > 0 {
		entries = append(entries, BuildEntry{Kind: "receival", Name: ReceivalFileName})
	}
	if len(moduleConfigs) > 0 {
		entries = append(entries, BuildEntry{Kind: "moduleconfig", Name: ModuleConfigFileName})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Kind < entries[j].Kind
	})
	return Build{Entries: entries}
}
