package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/repr"
	"github.com/mattn/go-isatty"

	"github.com/verlang/verl/analyser"
	"github.com/verlang/verl/emitter"
	"github.com/verlang/verl/parser"
)

var (
	printAST = flag.Bool("print", false, "pretty-print the parsed program and exit")
	dumpAST  = flag.Bool("ast", false, "dump the parsed AST and exit")
	overlook = flag.Bool("overlook-errors", false, "drop implementations that fail to resolve instead of failing")
	noCheck  = flag.Bool("no-typecheck", false, "stop after resolution")
)

var colour = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

func report(severity, message string) {
	if colour {
		code := "31"
		if severity == "warning" {
			code = "33"
		}
		fmt.Fprintf(os.Stderr, "\033[%sm%s:\033[0m %s\n", code, severity, message)
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", severity, message)
}

func fatalf(format string, args ...interface{}) {
	report("error", fmt.Sprintf(format, args...))
	os.Exit(1)
}

func readInput(args []string) (io.Reader, error) {
	if len(args) == 0 {
		return os.Stdin, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, err
	}
	return f, nil
}

func main() {
	flag.Parse()
	if flag.NArg() > 1 {
		fatalf("usage: verl [flags] [file]")
	}
	r, err := readInput(flag.Args())
	if err != nil {
		fatalf("%s", err)
	}

	ast, err := parser.Parse(r)
	if err != nil {
		fatalf("%s", err)
	}
	if *dumpAST {
		repr.Println(ast)
		return
	}
	if *printAST {
		if err := emitter.Emit(os.Stdout, ast); err != nil {
			fatalf("%s", err)
		}
		return
	}

	program := analyser.New(ast, analyser.Options{OverlookResolutionErrors: *overlook})
	if n := program.Resolve(); n > 0 {
		for _, e := range program.Errors() {
			report("error", e.Error())
		}
		fatalf("%d resolution errors", n)
	}
	for _, impl := range program.Dropped {
		report("warning", fmt.Sprintf("%s: dropped implementation %q due to resolution errors", impl.Pos, impl.Name))
	}
	if *noCheck {
		return
	}
	if n := program.Typecheck(); n > 0 {
		for _, e := range program.Errors() {
			report("error", e.Error())
		}
		fatalf("%d typechecking errors", n)
	}
}
