// Command ssaopt parses a textual IR module, runs the optimization pass
// pipeline over it, and prints the result (and optionally a structured
// trace of every rewrite attempted).
package main

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/oxidesoft/ssaopt/internal/ir"
	"github.com/oxidesoft/ssaopt/internal/passes"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	app := cli.NewApp()
	app.Name = "ssaopt"
	app.Usage = "run LocalOpts/LICM/LoopFusion over a textual IR module"
	app.Version = "0.1.0"

	dumpFlag := cli.BoolFlag{Name: "dump", Usage: "spew-dump the module before and after optimization"}
	traceFlag := cli.BoolFlag{Name: "trace", Usage: "print a structured table of every rewrite attempted"}

	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "optimize the given IR file and print the result",
			Flags: []cli.Flag{dumpFlag, traceFlag},
			Action: func(c *cli.Context) error {
				return runCommand(c)
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ssaopt: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: ssaopt run [options] <input file>")
	}
	path := c.Args().Get(0)
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening input file: %w", err)
	}
	defer file.Close()

	module, err := ir.NewParser().ParseModule(file)
	if err != nil {
		return fmt.Errorf("parsing module: %w", err)
	}

	if c.Bool("dump") {
		fmt.Fprintln(os.Stderr, "--- before ---")
		spew.Fdump(os.Stderr, module)
	}

	var tr *passes.Trace
	if c.Bool("trace") {
		tr = passes.NewTrace()
	}

	mgr := passes.NewManager(passes.LocalOpts{}, passes.LICM{}, passes.LoopFusion{})
	mgr.Run(module, tr)

	if c.Bool("dump") {
		fmt.Fprintln(os.Stderr, "--- after ---")
		spew.Fdump(os.Stderr, module)
	}
	if tr != nil {
		tr.Print(os.Stderr)
	}

	module.Print(os.Stdout)
	return nil
}
