// classinit: count, per tracked class hierarchy, how constructed instances
// are subsequently used across a program.
// This is the entry point.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/chaozhouzhang/redex/analysis/classinit"
	"github.com/chaozhouzhang/redex/analysis/config"
	"github.com/chaozhouzhang/redex/internal/format"
	"github.com/chaozhouzhang/redex/ir"
)

var (
	configFlag = ""
	jsonFlag   = false
)

func init() {
	flag.StringVar(&configFlag, "config", "", "path to the YAML configuration file")
	flag.BoolVar(&jsonFlag, "json", false, "output results as JSON")
}

const usage = `Count how instances of a tracked class hierarchy are used.

Usage:
  classinit -config config.yml program...

Use the -help flag to display the options.
`

func main() {
	if err := doMain(); err != nil {
		fmt.Fprintf(os.Stderr, "classinit: %s\n", err)
		os.Exit(1)
	}
}

func doMain() error {
	flag.Parse()

	if configFlag == "" || len(flag.Args()) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	logger := cfg.Logger()

	fmt.Fprintf(os.Stderr, format.Faint("Loading program")+"\n")
	classes, err := loadProgram(flag.Args())
	if err != nil {
		return fmt.Errorf("loading program: %w", err)
	}

	fmt.Fprintf(os.Stderr, format.Faint("Analyzing")+"\n")
	result, err := classinit.NewProgram(cfg).Run(classes)
	if err != nil {
		fmt.Fprintf(os.Stderr, format.Bad(err.Error())+"\n")
		return err
	}

	if jsonFlag {
		return printJSON(result)
	}
	fmt.Print(result.DebugShowTable())
	logger.Infof("done")
	return nil
}

// loadProgram is a placeholder for the real IR loader: this repo treats the
// bytecode loader and its archive unpacking as an external collaborator (see
// ir/model.go), so there is nothing here to parse program arguments into an
// *ir.Class slice. Left unimplemented rather than faked with a toy parser.
func loadProgram(_ []string) ([]*ir.Class, error) {
	return nil, fmt.Errorf("no program loader wired up; supply one via ir.Class/ir.Method construction")
}

func printJSON(result *classinit.ProgramIndex) error {
	buf, err := json.Marshal(result.Findings())
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}
