// Package reduction implements the reduction placer: it decides,
// for every (call, order) pair that has at least one reduction-flagged
// analysis mapping, which single layer actually executes the reduction.
package reduction

import (
	"fmt"
	"sort"

	"github.com/viant/weaver/internal/diagnostics"
	"github.com/viant/weaver/internal/layer"
	"github.com/viant/weaver/internal/mapping"
	"github.com/viant/weaver/internal/spec"
)

// Forward is one outgoing channel a partially reduced record travels
// over on its way from the application to the reduction's host layer.
type Forward struct {
	FromLayer int
	ToLayer   int
	Strategy  string
	// Intra marks the host layer's intra-layer communication, which
	// participates as a channel in the forward set when present.
	Intra bool
}

// Placement is the resolved host of one (call, order) reduction.
type Placement struct {
	Call       string
	Order      mapping.Order
	HostLayer  int
	ModuleName string
	MappingID  int

	// Forwards records, for every layer on the path from the application
	// to HostLayer, the outgoing channel the partially reduced record is
	// emitted over.
	Forwards []Forward
}

// Placer assigns each reduction to the lowest layer (closest to the
// application) that hosts the reduction's owning module, enforcing "at most
// one reduction per (call, order)". If that layer does not lie on the
// application's forwarding path, placement fails; higher hosting layers
// are not tried instead.
type Placer struct {
	registry *spec.Registry
	model    *mapping.Model
	graph    *layer.Graph
	sink     *diagnostics.Sink
}

// New creates a Placer.
func New(registry *spec.Registry, model *mapping.Model, g *layer.Graph, sink *diagnostics.Sink) *Placer {
	return &Placer{registry: registry, model: model, graph: g, sink: sink}
}

type candidate struct {
	layerOrder int
	moduleName string
	mappingID  int
}

// Place resolves every reduction placement. It returns a PlacementError if
// a reduction-flagged mapping exists for a (call, order) but no layer on
// the graph hosts its owning module, or the chosen host is not on the
// application's forwarding path.
func (p *Placer) Place() ([]Placement, error) {
	var out []Placement
	for _, call := range p.registry.Calls() {
		for _, ord := range []mapping.Order{mapping.Pre, mapping.Post} {
			placement, err := p.placeOne(call.Name, ord)
			if err != nil {
				return nil, err
			}
			if placement != nil {
				out = append(out, *placement)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Call != out[j].Call {
			return out[i].Call < out[j].Call
		}
		return out[i].Order < out[j].Order
	})
	return out, nil
}

func (p *Placer) placeOne(callName string, ord mapping.Order) (*Placement, error) {
	var candidates []candidate
	hasReductionMapping := false
	for _, mp := range p.model.MappingsOf(callName, ord) {
		if !mp.IsReduction {
			continue
		}
		hasReductionMapping = true
		calc, ok := p.registry.Calculation(mp.CalculationName)
		if !ok {
			return nil, diagnostics.NewUnresolvedReferenceError("calculation", mp.CalculationName)
		}
		for _, l := range p.graph.Layers() {
			if hostsModule(l, calc.ModuleName) {
				candidates = append(candidates, candidate{layerOrder: l.Order, moduleName: calc.ModuleName, mappingID: mp.ID})
			}
		}
	}
	if !hasReductionMapping {
		return nil, nil
	}
	if len(candidates) == 0 {
		return nil, diagnostics.NewPlacementError(callName, string(ord), "reduction is mapped but its module is assigned to no layer")
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].layerOrder < candidates[j].layerOrder })
	host := candidates[0]

	if len(candidates) > 1 {
		for _, extra := range candidates[1:] {
			p.sink.Record(diagnostics.Warning{
				Kind:  diagnostics.WarningReductionRemoved,
				Call:  callName,
				Order: string(ord),
				Detail: fmt.Sprintf("reduction module %q also assigned on layer %d; layer %d hosts it instead",
					extra.moduleName, extra.layerOrder, host.layerOrder),
			})
		}
		p.sink.Record(diagnostics.Warning{
			Kind:   diagnostics.WarningMultipleReductions,
			Call:   callName,
			Order:  string(ord),
			Detail: fmt.Sprintf("%d candidate layers hosted a reduction for this call/order; only one reduction per (call, order) is kept", len(candidates)),
		})
	}

	forwards, err := p.forwardPath(callName, ord, host.layerOrder)
	if err != nil {
		return nil, err
	}
	return &Placement{Call: callName, Order: ord, HostLayer: host.layerOrder, ModuleName: host.moduleName, MappingID: host.mappingID, Forwards: forwards}, nil
}

// forwardPath walks the reduced tree from the application layer up to the
// host layer and records the outgoing channel of every hop. The host
// layer's intra-communication, when present, joins the set as its own
// channel. A host that does not lie on the application's forwarding path
// cannot absorb the event stream and is a placement failure.
func (p *Placer) forwardPath(callName string, ord mapping.Order, hostLayer int) ([]Forward, error) {
	var forwards []Forward
	cur := 0
	maxHops := len(p.graph.Layers())
	for cur != hostLayer {
		if len(forwards) > maxHops {
			return nil, diagnostics.NewPlacementError(callName, string(ord),
				fmt.Sprintf("forwarding path from the application never reaches host layer %d", hostLayer))
		}
		l, ok := p.graph.Layer(cur)
		if !ok || len(l.OutEdges) == 0 {
			return nil, diagnostics.NewPlacementError(callName, string(ord),
				fmt.Sprintf("reduction host layer %d is not on the forwarding path from the application", hostLayer))
		}
		e := l.OutEdges[0]
		forwards = append(forwards, Forward{FromLayer: e.From, ToLayer: e.To, Strategy: e.Strategy})
		cur = e.To
	}
	if host, ok := p.graph.Layer(hostLayer); ok && host.IntraComm != "" {
		forwards = append(forwards, Forward{FromLayer: hostLayer, ToLayer: hostLayer, Strategy: host.IntraComm, Intra: true})
	}
	return forwards, nil
}

func hostsModule(l *layer.Layer, moduleName string) bool {
	for _, m := range l.AssignedModules {
		if m == moduleName {
			return true
		}
	}
	return false
}
