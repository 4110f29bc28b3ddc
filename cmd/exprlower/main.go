package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"exprfutures-go/packages/lowering/async"
	"exprfutures-go/packages/lowering/config"
	"exprfutures-go/packages/lowering/ext"
	"exprfutures-go/packages/lowering/interp"
	"exprfutures-go/packages/lowering/ir"
	"exprfutures-go/packages/lowering/runtime"
)

func usage() {
	fmt.Println(`exprlower - lower and run expression trees
Usage: exprlower [--config <file>] <command> [args]

Commands:
  list               List the built-in scenarios
  phases             List the async lowering phases
  lower <scenario>   Print the reduced tree of a scenario
  run <scenario>     Lower and evaluate a scenario
  help               Show help`)
}

func main() {
	args, cfgPath, err := splitConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	cfg := config.NewLoweringConfig()
	if cfgPath != "" {
		if cfg, err = config.Load(cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.ApplyTracing("exprfutures.ext", "exprfutures.async")
	ext.Configure(cfg)
	async.Configure(cfg)

	switch args[0] {
	case "help":
		usage()
	case "list":
		for _, name := range scenarioNames() {
			fmt.Printf("%-16s %s\n", name, scenarios[name].summary)
		}
	case "phases":
		for _, name := range async.Phases() {
			fmt.Println(name)
		}
	case "lower":
		if len(args) < 2 {
			usage()
			os.Exit(1)
		}
		if err := lower(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "lower error: %v\n", err)
			os.Exit(1)
		}
	case "run":
		if len(args) < 2 {
			usage()
			os.Exit(1)
		}
		if err := run(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "run error: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

// splitConfig removes a leading --config option from args
func splitConfig(args []string) ([]string, string, error) {
	if len(args) > 0 && args[0] == "--config" {
		if len(args) < 2 {
			return nil, "", errors.New("--config requires a file")
		}
		return args[2:], args[1], nil
	}
	return args, "", nil
}

func lower(name string) error {
	s, err := lookupScenario(name)
	if err != nil {
		return err
	}
	n, err := s.build(runtime.NewEventLoop())
	if err != nil {
		return errors.Wrapf(err, "building %s", name)
	}
	reduced, err := reduce(n)
	if err != nil {
		return err
	}
	fmt.Println(ir.Print(reduced))
	return nil
}

// reduce turns the panics raised by failing reductions into errors
func reduce(n ir.Node) (res ir.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = errors.Errorf("%v", r)
		}
	}()
	return ir.ReduceExtensions(n, nil), nil
}

func run(name string) error {
	s, err := lookupScenario(name)
	if err != nil {
		return err
	}
	loop := runtime.NewEventLoop()
	n, err := s.build(loop)
	if err != nil {
		return errors.Wrapf(err, "building %s", name)
	}
	if n, err = reduce(n); err != nil {
		return err
	}
	v, err := interp.Eval(n)
	if err != nil {
		return err
	}
	if steps := loop.Run(); steps > 0 {
		fmt.Printf("event loop ran %d callbacks\n", steps)
	}
	if task, ok := v.(*runtime.Task); ok {
		if !task.IsCompleted() {
			return errors.New("task did not complete")
		}
		if v, err = task.Result(); err != nil {
			return err
		}
	}
	fmt.Println(runtime.ToString(v))
	return nil
}
