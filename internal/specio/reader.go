// Package specio defines the collaborator interfaces an XML spec reader
// must satisfy. Parsing the four declarative XML input documents (API,
// analyses, GTI building blocks, layer layout) into Go types is explicitly out
// of scope for this repo; the driver depends only on these
// interfaces, and internal/specio/fake provides an in-memory
// implementation every test in this module is built against.
package specio

import (
	"context"

	"github.com/viant/weaver/internal/layer"
	"github.com/viant/weaver/internal/mapping"
	"github.com/viant/weaver/internal/spec"
)

// APIDocument is the parsed contents of one API spec file.
type APIDocument struct {
	FormatVersion string
	Calls         []spec.ApiCall
}

// MappingDecl declares one attachment of an analysis or operation to a
// call, as found in an analyses spec file.
type MappingDecl struct {
	Call            string
	CalculationName string
	IsOperation     bool
	Order           mapping.Order
	IntraOrder      int
	Inputs          []mapping.Input
	IsReduction     bool
}

// AnalysisDocument is the parsed contents of one analyses spec file.
type AnalysisDocument struct {
	FormatVersion string
	Calculations  []spec.Calculation
	Modules       []spec.AnalysisModule
	Mappings      []MappingDecl
}

// GTIDocument is the parsed contents of the GTI building-blocks spec file.
type GTIDocument struct {
	FormatVersion string
	Modules       []spec.Module
	Strategies    []spec.CommStrategy
	Protocols     []spec.CommProtocol
	Places        []spec.Place
	Enumerations  []spec.Enumeration
}

// LayoutDocument is the parsed contents of the layer layout spec file.
// Merges are the module-config merge directives: each names a pair of
// layers whose module instances share one configuration document.
type LayoutDocument struct {
	Layers      []layer.Layer
	Adjacencies []layer.Adjacency
	Merges      []layer.Merge
}

// APIReader reads an API spec file.
type APIReader interface {
	ReadAPI(ctx context.Context, path string) (APIDocument, error)
}

// AnalysisReader reads an analyses spec file.
type AnalysisReader interface {
	ReadAnalyses(ctx context.Context, path string) (AnalysisDocument, error)
}

// GTIReader reads the GTI building-blocks spec file.
type GTIReader interface {
	ReadGTI(ctx context.Context, path string) (GTIDocument, error)
}

// LayoutReader reads the layer layout spec file.
type LayoutReader interface {
	ReadLayout(ctx context.Context, path string) (LayoutDocument, error)
}

// Reader composes all four spec readers; the driver depends on this
// single interface so a production implementation can satisfy it with one
// XML-backed type while tests substitute internal/specio/fake.
type Reader interface {
	APIReader
	AnalysisReader
	GTIReader
	LayoutReader
}
