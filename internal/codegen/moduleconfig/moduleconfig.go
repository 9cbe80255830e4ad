// Package moduleconfig implements the module-config emitter: for
// every layer, the ordered list of module instances (place, strategies,
// protocols, wrappers, receivals, analysis modules) a runtime host must
// stack, with prepended modules materialized ahead of what they back and
// a stable instance id for cross-referencing between instances and from
// other generator outputs.
package moduleconfig

import (
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/minio/highwayhash"

	"github.com/viant/weaver/internal/layer"
	"github.com/viant/weaver/internal/solver"
	"github.com/viant/weaver/internal/spec"
)

var instanceIDKey = []byte("weaver-module-instance-id-key-00")

// Setting is one concrete module setting, rendered as a child element.
type Setting struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// Instance is one module instance stacked on a layer. ToLevel is set when
// the instance connects to another layer; Uses lists the instance ids
// this instance depends on; OriginLayer is preserved when a merge
// directive moves the instance into another layer's document.
type Instance struct {
	Kind        string    `xml:"kind,attr"`
	Name        string    `xml:"name,attr"`
	ConfigName  string    `xml:"config_name,attr"`
	InstanceID  uint64    `xml:"instance_id,attr"`
	ToLevel     *int      `xml:"to_level,attr,omitempty"`
	OriginLayer *int      `xml:"origin_layer,attr,omitempty"`
	Uses        []uint64  `xml:"uses>instance,omitempty"`
	Settings    []Setting `xml:"setting,omitempty"`
}

// LayerConfig is one layer's module-config generator input; the section
// order is the load order the module-stacking host honours.
type LayerConfig struct {
	XMLName    xml.Name   `xml:"module_config"`
	Layer      int        `xml:"layer,attr"`
	Place      Instance   `xml:"place"`
	Strategies []Instance `xml:"strategies>strategy,omitempty"`
	Protocols  []Instance `xml:"protocols>protocol,omitempty"`
	Wrappers   []Instance `xml:"wrappers>wrapper,omitempty"`
	Receivals  []Instance `xml:"receivals>receival,omitempty"`
	Analyses   []Instance `xml:"analyses>analysis_module,omitempty"`
}

// Generator builds layer module-config documents from the registry and
// layer graph.
type Generator struct {
	registry *spec.Registry
}

// New creates a Generator.
func New(registry *spec.Registry) *Generator {
	return &Generator{registry: registry}
}

// Generate produces one LayerConfig per layer, then applies the merge
// directives: each merged pair shares the lower layer's document, with
// the higher layer's instances keeping their originating-layer id.
func (g *Generator) Generate(g2 *layer.Graph, props []*solver.CallProperties, merges []layer.Merge) []LayerConfig {
	needsWrapper := map[int]bool{}
	needsReceival := map[int]bool{}
	for _, p := range props {
		if p.NeedsWrapper {
			needsWrapper[p.Layer] = true
		}
		if p.NeedsReceival {
			needsReceival[p.Layer] = true
		}
	}

	var out []LayerConfig
	for _, l := range g2.Layers() {
		cfg := LayerConfig{Layer: l.Order}
		place, hasPlace := g.registry.Place(l.Place)
		if hasPlace {
			cfg.Place = g.instance(l.Order, "place", place.Name, place.ConfigName, defaultSettings(place.Settings))
		}

		// Inter-layer strategies, one per out-edge; each strategy's
		// up/down modules are stacked as protocol instances the strategy
		// references by id.
		for _, e := range l.OutEdges {
			strat, ok := g.registry.Strategy(e.Strategy)
			if !ok {
				continue
			}
			inst := g.instance(l.Order, "strategy", strat.Name, strat.Name, defaultSettings(strat.Settings))
			to := e.To
			inst.ToLevel = &to
			for _, pr := range []struct{ kind, name string }{
				{"protocol-up", strat.UpModule},
				{"protocol-down", strat.DownModule},
			} {
				if pr.name == "" {
					continue
				}
				if proto, ok := g.registry.Protocol(pr.name); ok {
					p := g.instance(l.Order, pr.kind, proto.Name, proto.ConfigName, defaultSettings(proto.Settings))
					p.ToLevel = &to
					cfg.Protocols = append(cfg.Protocols, p)
					inst.Uses = append(inst.Uses, p.InstanceID)
				}
			}
			cfg.Strategies = append(cfg.Strategies, inst)
		}
		if l.IntraComm != "" {
			if strat, ok := g.registry.Strategy(l.IntraComm); ok {
				cfg.Strategies = append(cfg.Strategies, g.instance(l.Order, "strategy", strat.Name, strat.Name, defaultSettings(strat.Settings)))
			}
		}

		// A place requires the protocols named in its RequiredAPIs; only
		// those that resolve to a registered protocol are stacked.
		if hasPlace {
			for _, protoName := range place.RequiredAPIs {
				if proto, ok := g.registry.Protocol(protoName); ok {
					cfg.Protocols = append(cfg.Protocols, g.instance(l.Order, "protocol", proto.Name, proto.ConfigName, defaultSettings(proto.Settings)))
				}
			}
		}

		if needsWrapper[l.Order] {
			name := fmt.Sprintf("wrapper_layer_%d", l.Order)
			cfg.Wrappers = append(cfg.Wrappers, g.instance(l.Order, "wrapper", name, name, nil))
		}
		if needsReceival[l.Order] {
			name := fmt.Sprintf("receival_layer_%d", l.Order)
			cfg.Receivals = append(cfg.Receivals, g.instance(l.Order, "receival", name, name, nil))
		}

		for _, moduleName := range g.materializeModules(l.AssignedModules) {
			if m, ok := g.registry.AnalysisModule(moduleName); ok {
				cfg.Analyses = append(cfg.Analyses, g.instance(l.Order, "analysis", m.Name, m.LoadName, nil))
			}
		}
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Layer < out[j].Layer })
	return applyMerges(out, merges)
}

// applyMerges folds each merged pair into the lower layer's document,
// stamping moved instances with their originating layer.
func applyMerges(configs []LayerConfig, merges []layer.Merge) []LayerConfig {
	if len(merges) == 0 {
		return configs
	}
	byLayer := map[int]int{}
	for i, cfg := range configs {
		byLayer[cfg.Layer] = i
	}
	dropped := map[int]bool{}
	for _, m := range merges {
		hi, okHi := byLayer[m.High]
		lo, okLo := byLayer[m.Low]
		if !okHi || !okLo || m.High == m.Low {
			continue
		}
		high := &configs[hi]
		low := &configs[lo]
		origin := high.Layer
		stamp := func(list []Instance) []Instance {
			for i := range list {
				o := origin
				list[i].OriginLayer = &o
			}
			return list
		}
		if high.Place.Name != "" {
			moved := high.Place
			o := origin
			moved.OriginLayer = &o
			// A merged document keeps a single place slot; the higher
			// layer's place travels in the protocol section instead.
			low.Protocols = append(low.Protocols, moved)
		}
		low.Strategies = append(low.Strategies, stamp(high.Strategies)...)
		low.Protocols = append(low.Protocols, stamp(high.Protocols)...)
		low.Wrappers = append(low.Wrappers, stamp(high.Wrappers)...)
		low.Receivals = append(low.Receivals, stamp(high.Receivals)...)
		low.Analyses = append(low.Analyses, stamp(high.Analyses)...)
		dropped[high.Layer] = true
	}
	var out []LayerConfig
	for _, cfg := range configs {
		if !dropped[cfg.Layer] {
			out = append(out, cfg)
		}
	}
	return out
}

// materializeModules expands every assigned module's Prepended chain and
// hard dependencies ahead of it, in a stable order, without duplicating a
// module already present earlier in the list. Soft dependencies exist to
// break cycles and never become child instances.
func (g *Generator) materializeModules(assigned []string) []string {
	seen := map[string]bool{}
	var out []string
	var visit func(name string)
	visit = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if m, ok := g.registry.Module(name); ok {
			for _, dep := range m.Prepended {
				visit(dep)
			}
		}
		if am, ok := g.registry.AnalysisModule(name); ok {
			for _, dep := range am.HardDeps {
				visit(dep)
			}
		}
		out = append(out, name)
	}
	for _, name := range assigned {
		visit(name)
	}
	return out
}

func (g *Generator) instance(layerOrder int, kind, name, configName string, settings []Setting) Instance {
	return Instance{
		Kind:       kind,
		Name:       name,
		ConfigName: configName,
		InstanceID: instanceID(layerOrder, kind, name),
		Settings:   settings,
	}
}

func defaultSettings(descs []spec.SettingDescription) []Setting {
	var out []Setting
	for _, d := range descs {
		out = append(out, Setting{Name: d.Name, Value: renderDefault(d.Default)})
	}
	return out
}

func renderDefault(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return xmlAttrFallback(v)
	}
}

func xmlAttrFallback(v interface{}) string {
	b, err := xml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// instanceID derives a stable id for a (layer, kind, name) module instance
// using the same highwayhash primitive the channel-id plan uses to dedupe
// record shapes, so cross-generator-output references stay stable across
// re-runs of the weaver over an unchanged input set.
func instanceID(layerOrder int, kind, name string) uint64 {
	h, err := highwayhash.New64(instanceIDKey)
	if err != nil {
		return 0
	}
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte{byte(layerOrder), byte(layerOrder >> 8), byte(layerOrder >> 16), byte(layerOrder >> 24)})
	return h.Sum64()
}

// Render marshals configs as an indented XML document.
func Render(configs []LayerConfig) ([]byte, error) {
	type configSet struct {
		XMLName xml.Name      `xml:"module_configs"`
		Items   []LayerConfig `xml:"module_config"`
	}
	return xml.MarshalIndent(configSet{Items: configs}, "", "  ")
}
