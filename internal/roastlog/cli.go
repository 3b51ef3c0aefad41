package roastlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/spf13/pflag"
)

// Renderer turns the contents of one input file into a markdown report.
type Renderer func(path, src string) (string, error)

// RunCLI implements "<name> <input-file> [-o|--output path]" and returns the
// process exit code.
func RunCLI(name string, args []string, stdout, stderr io.Writer, render Renderer) int {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	output := flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s <input-file> [-o|--output path]\n", name)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return 1
	}
	input := flags.Arg(0)

	src, err := os.ReadFile(input)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(stderr, "Error: File '%s' not found.\n", input)
		} else {
			fmt.Fprintf(stderr, "Error reading file: %v\n", err)
		}
		return 1
	}
	if !utf8.Valid(src) {
		fmt.Fprintln(stderr, "Error reading file: content is not valid UTF-8")
		return 1
	}

	report, err := render(input, string(src))
	if err != nil {
		fmt.Fprintf(stderr, "Error parsing file content: %v\n", err)
		return 1
	}

	if *output == "" {
		fmt.Fprintln(stdout, report)
		return 0
	}
	if err := os.WriteFile(*output, []byte(report), 0o644); err != nil {
		fmt.Fprintf(stderr, "Error writing to output file: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Markdown output written to %s\n", *output)
	return 0
}

// RenderAlog is the Renderer for .alog profiles.
func RenderAlog(path, src string) (string, error) {
	report, err := ParseAlog(path, src)
	if err != nil {
		return "", err
	}
	return report.Markdown(), nil
}

// RoastRenderer returns the Renderer for labeled-field logs, dating
// synthesized titles with now().
func RoastRenderer(now func() time.Time) Renderer {
	return func(_, src string) (string, error) {
		return ExtractRoast(src, now()).Markdown(), nil
	}
}
