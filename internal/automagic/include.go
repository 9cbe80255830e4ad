// Package automagic implements the fixed-point automagic module inclusion
// pass: it assigns analysis modules flagged IsAddedAutomagically to
// additional layers whenever every input their analyses need is already
// present in that layer's used_args, without ever growing what the layer
// needs to receive.
package automagic

import (
	"sort"
	"strconv"

	"github.com/viant/weaver/internal/layer"
	"github.com/viant/weaver/internal/mapping"
	"github.com/viant/weaver/internal/solver"
	"github.com/viant/weaver/internal/spec"
)

// Include runs the fixed-point loop and returns the (layer, module) pairs
// it added, sorted by layer then module name. It mutates the
// Layer.AssignedModules slices in g in place and does not touch props: the
// solver properties passed in do not schedule the added modules' analyses
// until solver.Solve is run again.
func Include(registry *spec.Registry, model *mapping.Model, g *layer.Graph, props []*solver.CallProperties) []Addition {
	byLayerCall := map[int]map[string]*solver.CallProperties{}
	for _, p := range props {
		if byLayerCall[p.Layer] == nil {
			byLayerCall[p.Layer] = map[string]*solver.CallProperties{}
		}
		byLayerCall[p.Layer][string(p.Order)+"/"+p.Call] = p
	}

	var additions []Addition
	assignedElsewhere := map[string]map[string]bool{} // module -> layer set as string key, for quick membership
	for _, l := range g.Layers() {
		assignedElsewhere[keyFor(l.Order)] = map[string]bool{}
		for _, m := range l.AssignedModules {
			assignedElsewhere[keyFor(l.Order)][m] = true
		}
	}

	candidates := make([]*spec.AnalysisModule, 0)
	for _, m := range registry.AnalysisModules() {
		if m.IsAddedAutomagically {
			candidates = append(candidates, m)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })

	changed := true
	for changed {
		changed = false
		for _, l := range g.Layers() {
			assigned := assignedElsewhere[keyFor(l.Order)]
			for _, m := range candidates {
				if assigned[m.Name] {
					continue
				}
				if moduleSatisfiedLocally(registry, model, m, l.Order, byLayerCall[l.Order]) {
					l.AssignedModules = append(l.AssignedModules, m.Name)
					assigned[m.Name] = true
					additions = append(additions, Addition{Layer: l.Order, ModuleName: m.Name})
					changed = true
				}
			}
		}
	}

	sort.Slice(additions, func(i, j int) bool {
		if additions[i].Layer != additions[j].Layer {
			return additions[i].Layer < additions[j].Layer
		}
		return additions[i].ModuleName < additions[j].ModuleName
	})
	return additions
}

// Addition records one (layer, module) pair added by the fixed-point loop.
type Addition struct {
	Layer      int
	ModuleName string
}

func keyFor(order int) string {
	return "L" + strconv.Itoa(order)
}

// moduleSatisfiedLocally reports whether every analysis the module
// provides has, for every call/order it is mapped to, all of its mapped
// inputs already present in that layer's used_args — i.e. adding the
// module here would not require receiving anything new.
func moduleSatisfiedLocally(registry *spec.Registry, model *mapping.Model, m *spec.AnalysisModule, layerOrder int, propsByKey map[string]*solver.CallProperties) bool {
	if len(m.Analyses) == 0 {
		return false
	}
	satisfiedAny := false
	for _, analysisName := range m.Analyses {
		for _, ord := range []mapping.Order{mapping.Pre, mapping.Post} {
			for _, call := range registry.Calls() {
				for _, mp := range model.MappingsOf(call.Name, ord) {
					if mp.IsOperation || mp.CalculationName != analysisName {
						continue
					}
					p := propsByKey[string(ord)+"/"+call.Name]
					if p == nil {
						return false
					}
					for _, in := range mp.Inputs {
						if in.Kind == mapping.InputOperation {
							continue // its underlying leaves were already flattened into used_args elsewhere
						}
						if !p.UsedArgs.Contains(in.Key()) {
							return false
						}
					}
					satisfiedAny = true
				}
			}
		}
	}
	return satisfiedAny
}
