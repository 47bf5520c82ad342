// sourcegen CLI - writes the sample declarations as class files
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/sourcegen/catalog"
	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/config"
	"github.com/chazu/sourcegen/model"
	"github.com/chazu/sourcegen/writer"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	configDir := flag.String("C", ".", "Directory to search upward for sourcegen.toml")
	outDir := flag.String("o", "", "Output directory (overrides output.dir)")
	workers := flag.Int("workers", 0, "Concurrent types (overrides output.workers)")
	noIndex := flag.Bool("no-index", false, "Rewrite every artifact, ignoring the index")
	list := flag.Bool("list", false, "List the sample declarations and exit")
	disasm := flag.Bool("disasm", false, "Print the bytecode of every generated method instead of writing files")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sourcegen [options] [samples...]\n\n")
		fmt.Fprintf(os.Stderr, "Generates class files for the built-in sample declarations.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  sourcegen                  # Write every sample to output.dir\n")
		fmt.Fprintf(os.Stderr, "  sourcegen -o out Calc      # Write demo.Calc to out/\n")
		fmt.Fprintf(os.Stderr, "  sourcegen -disasm Numbers  # Show the switch lowering\n")
	}
	flag.Parse()

	if *list {
		for _, s := range catalog.Samples {
			fmt.Printf("%s.%s\n", catalog.Package, s.Name)
		}
		return
	}

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
		cfg.Output.Index = ""
	}
	if *workers > 0 {
		cfg.Output.Workers = *workers
	}
	if *verbose {
		cfg.Log.Verbosity = 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	commonlog.Configure(cfg.Log.Verbosity, cfg.LogFile())

	decls, err := selectSamples(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := writer.New(cfg)
	if *disasm {
		if err := printDisassembly(w, decls); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := write(w, cfg, decls, *noIndex, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// selectSamples builds the named samples, or all of them.
func selectSamples(names []string) ([]*model.TypeDecl, error) {
	if len(names) == 0 {
		return catalog.All()
	}
	var decls []*model.TypeDecl
	for _, name := range names {
		s, ok := catalog.Lookup(strings.TrimPrefix(name, catalog.Package+"."))
		if !ok {
			return nil, fmt.Errorf("unknown sample %q (see -list)", name)
		}
		d, err := s.Build()
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", name, err)
		}
		decls = append(decls, d)
	}
	return decls, nil
}

func write(w *writer.Writer, cfg *config.Config, decls []*model.TypeDecl, noIndex, verbose bool) error {
	dir := writer.NewDirSink(cfg.OutputDir())
	var sink writer.Sink = dir
	var indexed *writer.IndexedSink
	if path := cfg.IndexPath(); path != "" && !noIndex {
		var err error
		if indexed, err = writer.NewIndexedSink(dir, path); err != nil {
			return err
		}
		sink = indexed
	}

	report := w.WriteAll(decls, sink)
	if indexed != nil {
		if err := indexed.Save(); err != nil {
			return err
		}
	}

	for _, o := range report.Outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", o.Type, o.Err)
		case verbose:
			fmt.Printf("ok   %s (%s)\n", o.Type, strings.Join(o.Paths, ", "))
		}
	}
	skipped := 0
	if indexed != nil {
		skipped = indexed.Skipped()
	}
	fmt.Printf("Wrote %d class files to %s (%d unchanged)\n", len(dir.Written()), dir.Root(), skipped)
	if len(report.Failed()) > 0 {
		return fmt.Errorf("%d of %d types failed", len(report.Failed()), len(decls))
	}
	return nil
}

func printDisassembly(w *writer.Writer, decls []*model.TypeDecl) error {
	for _, d := range decls {
		artifacts, err := w.Generate(d)
		if err != nil {
			return err
		}
		for _, a := range artifacts {
			cf, err := classfile.Parse(a.Data)
			if err != nil {
				return err
			}
			fmt.Printf("class %s (%d bytes)\n", a.Name, len(a.Data))
			for _, m := range cf.Methods {
				name, desc, err := cf.MemberName(m)
				if err != nil {
					return err
				}
				code, err := cf.MethodCode(m)
				if err != nil {
					return err
				}
				if code == nil {
					fmt.Printf("  %s%s (abstract)\n\n", name, desc)
					continue
				}
				listing, err := classfile.Disassemble(code.Code, cf.Pool)
				if err != nil {
					return err
				}
				fmt.Printf("  %s%s stack=%d locals=%d\n", name, desc, code.MaxStack, code.MaxLocals)
				for _, line := range strings.Split(strings.TrimRight(listing, "\n"), "\n") {
					fmt.Printf("    %s\n", line)
				}
				fmt.Println()
			}
		}
	}
	return nil
}
