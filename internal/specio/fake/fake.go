// Package fake is an in-memory specio.Reader used by every test in this
// module in place of a real XML parser (out of scope for this repo).
package fake

import (
	"context"

	"github.com/viant/weaver/internal/diagnostics"
	"github.com/viant/weaver/internal/specio"
)

// Reader serves pre-built documents keyed by the path they were
// registered under, so tests can address "files" by name without
// touching a filesystem.
type Reader struct {
	api      map[string]specio.APIDocument
	analyses map[string]specio.AnalysisDocument
	gti      map[string]specio.GTIDocument
	layout   map[string]specio.LayoutDocument
}

// New creates an empty fake reader.
func New() *Reader {
	return &Reader{
		api:      map[string]specio.APIDocument{},
		analyses: map[string]specio.AnalysisDocument{},
		gti:      map[string]specio.GTIDocument{},
		layout:   map[string]specio.LayoutDocument{},
	}
}

// WithAPI registers an API document under path.
func (r *Reader) WithAPI(path string, doc specio.APIDocument) *Reader {
	r.api[path] = doc
	return r
}

// WithAnalyses registers an analyses document under path.
func (r *Reader) WithAnalyses(path string, doc specio.AnalysisDocument) *Reader {
	r.analyses[path] = doc
	return r
}

// WithGTI registers the GTI document under path.
func (r *Reader) WithGTI(path string, doc specio.GTIDocument) *Reader {
	r.gti[path] = doc
	return r
}

// WithLayout registers the layout document under path.
func (r *Reader) WithLayout(path string, doc specio.LayoutDocument) *Reader {
	r.layout[path] = doc
	return r
}

func (r *Reader) ReadAPI(_ context.Context, path string) (specio.APIDocument, error) {
	doc, ok := r.api[path]
	if !ok {
		return specio.APIDocument{}, diagnostics.NewIoError(path, nil)
	}
	return doc, nil
}

func (r *Reader) ReadAnalyses(_ context.Context, path string) (specio.AnalysisDocument, error) {
	doc, ok := r.analyses[path]
	if !ok {
		return specio.AnalysisDocument{}, diagnostics.NewIoError(path, nil)
	}
	return doc, nil
}

func (r *Reader) ReadGTI(_ context.Context, path string) (specio.GTIDocument, error) {
	doc, ok := r.gti[path]
	if !ok {
		return specio.GTIDocument{}, diagnostics.NewIoError(path, nil)
	}
	return doc, nil
}

func (r *Reader) ReadLayout(_ context.Context, path string) (specio.LayoutDocument, error) {
	doc, ok := r.layout[path]
	if !ok {
		return specio.LayoutDocument{}, diagnostics.NewIoError(path, nil)
	}
	return doc, nil
}

var _ specio.Reader = (*Reader)(nil)
