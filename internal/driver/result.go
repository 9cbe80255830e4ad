package driver

import (
	"encoding/xml"

	"github.com/viant/weaver/internal/codegen/moduleconfig"
	"github.com/viant/weaver/internal/codegen/receival"
	"github.com/viant/weaver/internal/codegen/wrapper"
	"github.com/viant/weaver/internal/diagnostics"
)

// BuildEntry is one file the build aggregator references.
type BuildEntry struct {
	Kind string `xml:"kind,attr"` // "wrapper", "receival", "moduleconfig"
	Name string `xml:"name,attr"`
}

// Build is the aggregate build document tying every generator output
// together into one buildable unit.
type Build struct {
	XMLName xml.Name     `xml:"build"`
	Entries []BuildEntry `xml:"entry"`
}

// Render marshals b as an indented XML document.
func (b Build) Render() ([]byte, error) {
	return xml.MarshalIndent(b, "", "  ")
}

// Result is everything one weave produced, ready either for inspection in
// a test or for cmd/weaver's writeOutputs to persist to disk.
type Result struct {
	Wrapper       []wrapper.Document
	Receival      []receival.Document
	ModuleConfig  []moduleconfig.LayerConfig
	Build         Build
	Warnings      []diagnostics.Warning
	APIPaths      []string
	AnalysisPaths []string
	LayerCount    int
}
