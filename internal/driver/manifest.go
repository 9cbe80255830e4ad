package driver

import (
	"gopkg.in/yaml.v3"

	"github.com/viant/weaver/internal/diagnostics"
)

// ManifestInputs mirrors the paths one weave was invoked with, split the
// way the CLI itself receives them: a fixed layout and GTI file, plus a
// mixed bag of API-or-analysis files the driver sorted by content.
type ManifestInputs struct {
	Layout   string   `yaml:"layout"`
	GTI      string   `yaml:"gti"`
	API      []string `yaml:"api,omitempty"`
	Analyses []string `yaml:"analyses,omitempty"`
}

// ManifestWarning is the YAML-friendly projection of a diagnostics.Warning.
type ManifestWarning struct {
	Kind   string `yaml:"kind"`
	Call   string `yaml:"call"`
	Order  string `yaml:"order"`
	Detail string `yaml:"detail"`
}

// ManifestOutputs lists the generated file names, one per generator, plus
// the single aggregate build document name.
type ManifestOutputs struct {
	Wrapper      string `yaml:"wrapper,omitempty"`
	Receival     string `yaml:"receival,omitempty"`
	ModuleConfig string `yaml:"moduleconfig,omitempty"`
	Build        string `yaml:"build"`
}

// Manifest is the C12 side-car: a human-inspectable record of one weave,
// independent of the XML generator-input contracts it describes.
type Manifest struct {
	Inputs    ManifestInputs    `yaml:"inputs"`
	Verbosity int               `yaml:"verbosity"`
	Layers    int               `yaml:"layers"`
	Warnings  []ManifestWarning `yaml:"warnings,omitempty"`
	Outputs   ManifestOutputs   `yaml:"outputs"`
}

// BuildManifest assembles the manifest for a completed Result. Skipped
// entirely by callers when the driver aborts before C10 completes, since
// there is then no complete Result to describe.
func BuildManifest(in Inputs, verbosity int, res *Result) Manifest {
	m := Manifest{
		Inputs: ManifestInputs{
			Layout:   in.LayoutPath,
			GTI:      in.GTIPath,
			API:      res.APIPaths,
			Analyses: res.AnalysisPaths,
		},
		Verbosity: verbosity,
		Layers:    res.LayerCount,
		Outputs: ManifestOutputs{
			Build: BuildFileName,
		},
	}
	for _, w := range res.Warnings {
		m.Warnings = append(m.Warnings, ManifestWarning{
			Kind:   string(w.Kind),
			Call:   w.Call,
			Order:  w.Order,
			Detail: w.Detail,
		})
	}
	if len(res.Wrapper) > 0 {
		m.Outputs.Wrapper = WrapperFileName
	}
	if len(res.Receival) > 0 {
		m.Outputs.Receival = ReceivalFileName
	}
	if len(res.ModuleConfig) > 0 {
		m.Outputs.ModuleConfig = ModuleConfigFileName
	}
	return m
}

// RenderManifest marshals m as YAML.
func RenderManifest(m Manifest) ([]byte, error) {
	out, err := yaml.Marshal(m)
	if err != nil {
		return nil, diagnostics.NewParseError("manifest", "failed to render run manifest", err)
	}
	return out, nil
}
