// Package spec holds the immutable, post-parse representation of API
// calls, analyses, operations, analysis modules, GTI building blocks,
// communication strategies/protocols, places and enumerations.
//
// Entities are arena-allocated: every kind lives in its own slice on the
// Registry and is addressed by a stable integer index, so the cyclic
// references between calls, mappings and calculations never need pointer
// aliasing. Name lookups are eager maps built at registration time.
package spec

import "reflect"

// Intent is the direction of a scalar argument.
type Intent string

const (
	In    Intent = "in"
	Out   Intent = "out"
	Inout Intent = "inout"
)

// ArgKind tags the Argument variant.
type ArgKind int

const (
	ArgScalar ArgKind = iota
	ArgArrayWithArgLen
	ArgArrayWithOpLen
)

// Argument is a tagged union over the three argument variants: a plain
// scalar, an array whose length is another scalar argument of the same
// call, or an array whose length is produced by an operation.
type Argument struct {
	Kind ArgKind

	Name   string
	Type   string
	Intent Intent
	// PostNameSuffix is the optional post-name type suffix on a scalar
	// argument (e.g. a language-specific decoration applied after the
	// type name).
	PostNameSuffix string

	// LengthArgName is set when Kind == ArgArrayWithArgLen: the name of
	// the scalar argument of the same call carrying the length.
	LengthArgName string

	// LengthOperation/LengthMappingID are set when Kind ==
	// ArgArrayWithOpLen: the operation (by name) mapped to this call at
	// LengthMappingID that produces the length.
	LengthOperation string
	LengthMappingID int
	// UseReturnLength selects, for an array-returning operation, whether
	// the consumed value is the operation's length output rather than its
	// return value.
	UseReturnLength bool
}

// IsArray reports whether the argument denotes an array-typed value.
func (a Argument) IsArray() bool {
	return a.Kind == ArgArrayWithArgLen || a.Kind == ArgArrayWithOpLen
}

// ApiCall is one externally observable function the tool intercepts.
type ApiCall struct {
	ID        int
	Name      string
	Group     string
	Return    string
	Arguments []Argument

	WrappedEverywhere bool
	WrapAcross        bool
	WrapDown          bool
	IsFinalizer       bool
	IsLocalFinalizer  bool
	IsNotifyFinalize  bool
	IsOutOfOrder      bool
	IsCallback        bool
	IsHook            bool

	argIndex map[string]int
}

// Argument looks up an argument of this call by name in O(1).
func (c *ApiCall) Argument(name string) (Argument, bool) {
	if c.argIndex == nil {
		c.indexArguments()
	}
	idx, ok := c.argIndex[name]
	if !ok {
		return Argument{}, false
	}
	return c.Arguments[idx], true
}

func (c *ApiCall) indexArguments() {
	c.argIndex = make(map[string]int, len(c.Arguments))
	for i, a := range c.Arguments {
		c.argIndex[a.Name] = i
	}
}

// InputDescription is one entry of a calculation's ordered input
// specification.
type InputDescription struct {
	Type string
	Name string
}

// CalculationKind tags the Calculation variant.
type CalculationKind int

const (
	KindAnalysis CalculationKind = iota
	KindOperation
)

// Calculation is the common abstraction of analysis and operation.
type Calculation struct {
	Kind  CalculationKind
	Name  string
	Group string
	Input []InputDescription

	// Analysis-only fields.
	ModuleName     string
	FunctionName   string
	NeedsChannelID bool

	// Operation-only fields.
	ReturnType      string
	ReturnIsArray   bool
	LengthType      string
	Headers         []string
	SourceTemplate  string
	CleanupTemplate string
}

// AnalysisModule is the registered unit that provides analyses and wires
// them to the runtime module-stacking host.
type AnalysisModule struct {
	Name       string
	LoadName   string
	InstanceType string
	Header     string
	IncludeDir string

	Global               bool
	ProcessGlobal        bool
	ListensToTimeouts    bool
	IsLocalIntegrity     bool
	IsReduction          bool
	IsContinuous         bool
	IsAddedAutomagically bool

	Subgroup string

	HardDeps []string
	SoftDeps []string

	Reductions []string
	Analyses   []string
	// CallsCreated lists calls this module synthesizes locally for
	// wrap-across events.
	CallsCreated []string
}

// Module is a GTI building block: a flattened composition replacing the
// Printable/Configurable/Prepended/RequiresApi mixin hierarchy of the
// original source.
type Module struct {
	Name         string
	ConfigName   string
	InstanceType string
	Header       string
	IncludeDir   string
	Prepended    []string
	RequiredAPIs []string
	Settings     []SettingDescription
}

// CommStrategyKind distinguishes inter-layer from intra-layer strategies.
type CommStrategyKind int

const (
	StrategyInter CommStrategyKind = iota
	StrategyIntra
)

// CommStrategy is a communication building block: inter carries an
// up-module/down-module pair, intra carries a single module.
type CommStrategy struct {
	Kind       CommStrategyKind
	Name       string
	UpModule   string
	DownModule string
	IntraModule string
	Settings   []SettingDescription
}

// CommProtocol is a configurable module that may additionally support
// intra-layer communication.
type CommProtocol struct {
	Module
	SupportsIntra bool
}

// Place is an executable or module place a layer may run on.
type Place struct {
	Module
	IsExecutable bool
	RequiredAPIs []string
}

// Enumeration is a named list of legal string values referenced by enum /
// enum-selection settings.
type Enumeration struct {
	Name   string
	Values []string
}

// SettingKind enumerates the option kinds a SettingDescription may take.
type SettingKind int

const (
	SettingBool SettingKind = iota
	SettingInt
	SettingFloat
	SettingString
	SettingPath
	SettingFilePath
	SettingEnum
	SettingEnumSelection
)

// FilePathIntent describes the read/write intent of a file-path setting.
type FilePathIntent int

const (
	FileRead FilePathIntent = iota
	FileWrite
	FileReadWrite
)

// SettingDescription describes one legal (name, value) setting slot.
type SettingDescription struct {
	Name    string
	Kind    SettingKind
	Default interface{}

	HasIntRange bool
	IntMin      int
	IntMax      int

	HasFloatRange bool
	FloatMin      float64
	FloatMax      float64

	FilePathIntent FilePathIntent

	// EnumName references an Enumeration by name for Kind == SettingEnum
	// or SettingEnumSelection.
	EnumName string
	// AtLeastOneRequired applies only to SettingEnumSelection.
	AtLeastOneRequired bool
}

// Setting is a concrete (name, value) pair to be validated against a
// SettingDescription.
type Setting struct {
	Name  string
	Value interface{}
}

// reflectKindOf is a small helper used by validation to render a useful
// error message for the value's Go type.
func reflectKindOf(v interface{}) reflect.Kind {
	if v == nil {
		return reflect.Invalid
	}
	return reflect.TypeOf(v).Kind()
}
