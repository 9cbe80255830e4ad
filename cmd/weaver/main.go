package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/viant/weaver/internal/codegen/moduleconfig"
	"github.com/viant/weaver/internal/codegen/receival"
	"github.com/viant/weaver/internal/codegen/wrapper"
	"github.com/viant/weaver/internal/diagnostics"
	"github.com/viant/weaver/internal/driver"
	"github.com/viant/weaver/internal/ioutil"
	"github.com/viant/weaver/internal/specio/xmlreader"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose int

	cmd := &cobra.Command{
		Use:   "weaver <layout.xml> <gti.xml> <api_or_analysis.xml>...",
		Short: "Synthesize per-layer overlay-network tool sources from declarative specs",
		Long: "weaver reads a layer layout, a GTI building-block spec and one or more\n" +
			"API or analysis specs, solves per-layer call properties across the\n" +
			"reduced overlay tree, and emits wrapper, receival and module-config\n" +
			"generator-input documents plus a run manifest.",
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args, resolveVerbosity(verbose))
		},
	}

	cmd.PersistentFlags().IntVarP(&verbose, "verbose", "v", 0, "verbosity 0-3 (also read from WEAVER_VERBOSE)")
	return cmd
}

// resolveVerbosity lets WEAVER_VERBOSE set the default without requiring
// -v on every invocation; a non-zero -v on the command line wins, while
// -v 0 is indistinguishable from the default and defers to WEAVER_VERBOSE.
func resolveVerbosity(flagValue int) int {
	if flagValue != 0 {
		return flagValue
	}
	if env := os.Getenv("WEAVER_VERBOSE"); env != "" {
		if v, err := strconv.Atoi(env); err == nil {
			return v
		}
	}
	return 0
}

func run(ctx context.Context, args []string, verbosity int) error {
	in := driver.Inputs{
		LayoutPath:         args[0],
		GTIPath:            args[1],
		APIOrAnalysisPaths: args[2:],
		// The tool-internal API and analysis specs are always read ahead
		// of the user-supplied ones.
		ImplicitPaths: []string{"gti_internal_api.xml", "gti_internal_analyses.xml"},
	}

	sink := diagnostics.NewSink(verbosity)
	reader := xmlreader.New()

	res, err := driver.Run(ctx, reader, in, sink)
	if err != nil {
		return err
	}

	store := ioutil.New()
	if err := writeOutputs(ctx, store, res); err != nil {
		return err
	}

	manifest := driver.BuildManifest(in, verbosity, res)
	manifestBytes, err := driver.RenderManifest(manifest)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(ctx, store, "manifest.yaml", manifestBytes)
}

// writeOutputs persists every non-empty generator document plus the build
// aggregator. Partial failure here leaves whatever was already written on
// disk; the manifest (written only after this succeeds) is the signal that
// a weave completed cleanly, per the no-half-written-output rule.
func writeOutputs(ctx context.Context, store ioutil.Store, res *driver.Result) error {
	if len(res.Wrapper) > 0 {
		content, err := wrapper.Render(res.Wrapper)
		if err != nil {
			return err
		}
		if err := ioutil.WriteFile(ctx, store, driver.WrapperFileName, content); err != nil {
			return err
		}
	}
	if len(res.Receival) > 0 {
		content, err := receival.Render(res.Receival)
		if err != nil {
			return err
		}
		if err := ioutil.WriteFile(ctx, store, driver.ReceivalFileName, content); err != nil {
			return err
		}
	}
	if len(res.ModuleConfig) > 0 {
		content, err := moduleconfig.Render(res.ModuleConfig)
		if err != nil {
			return err
		}
		if err := ioutil.WriteFile(ctx, store, driver.ModuleConfigFileName, content); err != nil {
			return err
		}
	}
	content, err := res.Build.Render()
	if err != nil {
		return err
	}
	return ioutil.WriteFile(ctx, store, driver.BuildFileName, content)
}
