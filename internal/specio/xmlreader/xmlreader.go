// Package xmlreader is the production specio.Reader extension point. The
// four input documents are XML files, but parsing source text into
// the spec.* and layer.* types is explicitly out of scope for this repo:
// the weaver's job starts once a Reader hands it structured documents.
// Real deployments wire their own XML-backed Reader here; this package
// stands in with one that reports the condition clearly instead of
// silently returning zero-value documents.
package xmlreader

import (
	"context"

	"github.com/viant/weaver/internal/diagnostics"
	"github.com/viant/weaver/internal/specio"
)

// Reader satisfies specio.Reader without parsing anything; every method
// reports that no XML-backed reader is wired into this build.
type Reader struct{}

// New returns the not-implemented placeholder reader.
func New() *Reader {
	return &Reader{}
}

func notWired(path string) error {
	return diagnostics.NewIoError(path, errNoXMLReader)
}

var errNoXMLReader = &notImplementedError{}

type notImplementedError struct{}

func (*notImplementedError) Error() string {
	return "no XML-backed specio.Reader is wired into this build; supply one satisfying internal/specio.Reader"
}

func (r *Reader) ReadAPI(_ context.Context, path string) (specio.APIDocument, error) {
	return specio.APIDocument{}, notWired(path)
}

func (r *Reader) ReadAnalyses(_ context.Context, path string) (specio.AnalysisDocument, error) {
	return specio.AnalysisDocument{}, notWired(path)
}

func (r *Reader) ReadGTI(_ context.Context, path string) (specio.GTIDocument, error) {
	return specio.GTIDocument{}, notWired(path)
}

func (r *Reader) ReadLayout(_ context.Context, path string) (specio.LayoutDocument, error) {
	return specio.LayoutDocument{}, notWired(path)
}

var _ specio.Reader = (*Reader)(nil)
