package spec

import (
	"fmt"
	"sort"

	"golang.org/x/mod/semver"

	"github.com/viant/weaver/internal/diagnostics"
)

// MaxFormatVersion is the highest GTI spec format-version this weaver
// understands; CheckFormatVersion rejects anything newer.
const MaxFormatVersion = "v1.0.0"

// Registry is the immutable, post-load representation of one weave's
// input specifications. Every entity kind is arena-allocated in its
// own slice and addressed by stable integer index; name lookups are
// eager maps built as entities are added.
//
// Registry accepts additions only until Load() is called; afterwards any
// Add* call returns a ConstraintViolationError, giving every downstream
// pass a stable set of identities to reference by index or pointer.
type Registry struct {
	loaded bool

	calls      []*ApiCall
	callByName map[string]map[string]int // group -> name -> index
	nextCallID int

	calculations      []*Calculation
	calculationByName map[string]int // "group:name" -> index

	analysisModules      []*AnalysisModule
	analysisModuleByName map[string]int

	modules      []*Module
	moduleByName map[string]int

	strategies      []*CommStrategy
	strategyByName  map[string]int

	protocols      []*CommProtocol
	protocolByName map[string]int

	places      []*Place
	placeByName map[string]int

	enums      map[string]Enumeration
}

// NewRegistry creates an empty, mutable Registry.
func NewRegistry() *Registry {
	return &Registry{
		callByName:           map[string]map[string]int{},
		calculationByName:    map[string]int{},
		analysisModuleByName: map[string]int{},
		moduleByName:         map[string]int{},
		strategyByName:       map[string]int{},
		protocolByName:       map[string]int{},
		placeByName:          map[string]int{},
		enums:                map[string]Enumeration{},
	}
}

func (r *Registry) mutationGuard(scope string) error {
	if r.loaded {
		return diagnostics.NewConstraintViolationError(scope, "registry is loaded; no further additions are accepted")
	}
	return nil
}

// AddCall registers an API call, assigning it a fresh globally unique id.
// Name uniqueness is enforced per API group.
func (r *Registry) AddCall(call *ApiCall) error {
	if err := r.mutationGuard("call:" + call.Name); err != nil {
		return err
	}
	if r.callByName[call.Group] == nil {
		r.callByName[call.Group] = map[string]int{}
	}
	if _, exists := r.callByName[call.Group][call.Name]; exists {
		return diagnostics.NewConstraintViolationError("call:"+call.Name,
			fmt.Sprintf("duplicate call name in group %q", call.Group))
	}
	if call.WrapAcross && call.WrapDown {
		return diagnostics.NewConstraintViolationError("call:"+call.Name, "wrap_across and wrap_down are mutually exclusive")
	}
	for _, a := range call.Arguments {
		if a.Kind != ArgArrayWithArgLen {
			continue
		}
		lenArg, ok := call.Argument(a.LengthArgName)
		if !ok {
			return diagnostics.NewConstraintViolationError("call:"+call.Name,
				fmt.Sprintf("array argument %q references unknown length argument %q", a.Name, a.LengthArgName))
		}
		if lenArg.Kind != ArgScalar {
			return diagnostics.NewConstraintViolationError("call:"+call.Name,
				fmt.Sprintf("length argument %q of array %q must be a scalar", a.LengthArgName, a.Name))
		}
	}
	call.ID = r.nextCallID
	r.nextCallID++
	idx := len(r.calls)
	r.calls = append(r.calls, call)
	r.callByName[call.Group][call.Name] = idx
	return nil
}

// Call looks up an API call by group and name.
func (r *Registry) Call(group, name string) (*ApiCall, bool) {
	idx, ok := r.callByName[group][name]
	if !ok {
		return nil, false
	}
	return r.calls[idx], true
}

// CallByName looks up an API call by name alone, searching every group;
// callers that know the group should prefer Call.
func (r *Registry) CallByName(name string) (*ApiCall, bool) {
	for _, byName := range r.callByName {
		if idx, ok := byName[name]; ok {
			return r.calls[idx], true
		}
	}
	return nil, false
}

// Calls returns every registered API call, in registration order.
func (r *Registry) Calls() []*ApiCall {
	return append([]*ApiCall(nil), r.calls...)
}

// AddCalculation registers an analysis or operation. Name uniqueness is
// enforced per analysis group.
func (r *Registry) AddCalculation(c *Calculation) error {
	if err := r.mutationGuard("calculation:" + c.Name); err != nil {
		return err
	}
	key := c.Group + ":" + c.Name
	if _, exists := r.calculationByName[key]; exists {
		return diagnostics.NewConstraintViolationError("calculation:"+c.Name,
			fmt.Sprintf("duplicate calculation name in group %q", c.Group))
	}
	idx := len(r.calculations)
	r.calculations = append(r.calculations, c)
	r.calculationByName[key] = idx
	// also index by bare name for the common case of a single global group
	if _, exists := r.calculationByName[c.Name]; !exists {
		r.calculationByName[c.Name] = idx
	}
	return nil
}

// Calculation looks up an analysis or operation by name.
func (r *Registry) Calculation(name string) (*Calculation, bool) {
	idx, ok := r.calculationByName[name]
	if !ok {
		return nil, false
	}
	return r.calculations[idx], true
}

// Calculations returns every registered analysis/operation.
func (r *Registry) Calculations() []*Calculation {
	return append([]*Calculation(nil), r.calculations...)
}

// AddAnalysisModule registers an analysis module.
func (r *Registry) AddAnalysisModule(m *AnalysisModule) error {
	if err := r.mutationGuard("analysis-module:" + m.Name); err != nil {
		return err
	}
	if _, exists := r.analysisModuleByName[m.Name]; exists {
		return diagnostics.NewConstraintViolationError("analysis-module:"+m.Name, "duplicate analysis module name")
	}
	idx := len(r.analysisModules)
	r.analysisModules = append(r.analysisModules, m)
	r.analysisModuleByName[m.Name] = idx
	return nil
}

// AnalysisModule looks up an analysis module by name.
func (r *Registry) AnalysisModule(name string) (*AnalysisModule, bool) {
	idx, ok := r.analysisModuleByName[name]
	if !ok {
		return nil, false
	}
	return r.analysisModules[idx], true
}

// AnalysisModules returns every registered analysis module.
func (r *Registry) AnalysisModules() []*AnalysisModule {
	return append([]*AnalysisModule(nil), r.analysisModules...)
}

// AddModule registers a GTI building-block module.
func (r *Registry) AddModule(m *Module) error {
	if err := r.mutationGuard("module:" + m.Name); err != nil {
		return err
	}
	if _, exists := r.moduleByName[m.Name]; exists {
		return diagnostics.NewConstraintViolationError("module:"+m.Name, "duplicate module name")
	}
	idx := len(r.modules)
	r.modules = append(r.modules, m)
	r.moduleByName[m.Name] = idx
	return nil
}

// Module looks up a GTI building-block module by name.
func (r *Registry) Module(name string) (*Module, bool) {
	idx, ok := r.moduleByName[name]
	if !ok {
		return nil, false
	}
	return r.modules[idx], true
}

// AddStrategy registers a communication strategy.
func (r *Registry) AddStrategy(s *CommStrategy) error {
	if err := r.mutationGuard("strategy:" + s.Name); err != nil {
		return err
	}
	if _, exists := r.strategyByName[s.Name]; exists {
		return diagnostics.NewConstraintViolationError("strategy:"+s.Name, "duplicate strategy name")
	}
	idx := len(r.strategies)
	r.strategies = append(r.strategies, s)
	r.strategyByName[s.Name] = idx
	return nil
}

// Strategy looks up a communication strategy by name.
func (r *Registry) Strategy(name string) (*CommStrategy, bool) {
	idx, ok := r.strategyByName[name]
	if !ok {
		return nil, false
	}
	return r.strategies[idx], true
}

// AddProtocol registers a communication protocol.
func (r *Registry) AddProtocol(p *CommProtocol) error {
	if err := r.mutationGuard("protocol:" + p.Name); err != nil {
		return err
	}
	if _, exists := r.protocolByName[p.Name]; exists {
		return diagnostics.NewConstraintViolationError("protocol:"+p.Name, "duplicate protocol name")
	}
	idx := len(r.protocols)
	r.protocols = append(r.protocols, p)
	r.protocolByName[p.Name] = idx
	return nil
}

// Protocol looks up a communication protocol by name.
func (r *Registry) Protocol(name string) (*CommProtocol, bool) {
	idx, ok := r.protocolByName[name]
	if !ok {
		return nil, false
	}
	return r.protocols[idx], true
}

// AddPlace registers a place.
func (r *Registry) AddPlace(p *Place) error {
	if err := r.mutationGuard("place:" + p.Name); err != nil {
		return err
	}
	if _, exists := r.placeByName[p.Name]; exists {
		return diagnostics.NewConstraintViolationError("place:"+p.Name, "duplicate place name")
	}
	idx := len(r.places)
	r.places = append(r.places, p)
	r.placeByName[p.Name] = idx
	return nil
}

// Place looks up a place by name.
func (r *Registry) Place(name string) (*Place, bool) {
	idx, ok := r.placeByName[name]
	if !ok {
		return nil, false
	}
	return r.places[idx], true
}

// AddEnumeration registers an enumeration of legal setting values.
func (r *Registry) AddEnumeration(e Enumeration) error {
	if err := r.mutationGuard("enum:" + e.Name); err != nil {
		return err
	}
	if _, exists := r.enums[e.Name]; exists {
		return diagnostics.NewConstraintViolationError("enum:"+e.Name, "duplicate enumeration name")
	}
	r.enums[e.Name] = e
	return nil
}

// Enumerations returns every registered enumeration, keyed by name.
func (r *Registry) Enumerations() map[string]Enumeration {
	return r.enums
}

// CheckFormatVersion rejects a GTI spec whose declared format version is
// newer than MaxFormatVersion, using golang.org/x/mod/semver so version
// comparison follows the same precedence rules module resolution does
// rather than a hand-rolled string compare.
func CheckFormatVersion(declared string) error {
	if declared == "" {
		return nil
	}
	v := declared
	if v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return diagnostics.NewParseError("gti", fmt.Sprintf("invalid format version %q", declared), nil)
	}
	if semver.Compare(v, MaxFormatVersion) > 0 {
		return diagnostics.NewParseError("gti",
			fmt.Sprintf("format version %s is newer than the weaver understands (max %s)", declared, MaxFormatVersion), nil)
	}
	return nil
}

// Load freezes the registry: no further Add* call is accepted, and a
// second Load call is rejected. It performs no cross-entity checks of its
// own.
func (r *Registry) Load() error {
	if r.loaded {
		return diagnostics.NewConstraintViolationError("registry", "already loaded")
	}
	r.loaded = true
	return nil
}

// Loaded reports whether Load has been called.
func (r *Registry) Loaded() bool {
	return r.loaded
}

// SortedCallNames returns every call name across every group, sorted, for
// stable iteration in emitters.
func (r *Registry) SortedCallNames() []string {
	var names []string
	for _, byName := range r.callByName {
		for name := range byName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
