// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"vmsim.dev/vmsim/vmsim/config"
	"vmsim.dev/vmsim/vmsim/scenario"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	// keep leaves processes alive at the end of the scenario instead of
	// exiting them.
	keep bool
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "run a scenario of virtual memory operations"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] <scenario.yaml> - boot a machine and run the scenario's steps in order.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.keep, "keep", false, "do not exit the scenario's processes when it finishes, so leaks show in the final usage.")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := r.run(conf, f.Arg(0), os.Stdout); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

func (r *Run) run(conf *config.Config, path string, out io.Writer) error {
	s, err := scenario.Load(path)
	if err != nil {
		return err
	}
	k, err := boot(conf)
	if err != nil {
		return err
	}
	runner := scenario.NewRunner(k, out)
	runErr := runner.Run(s)
	if !r.keep {
		runner.Close()
	}
	u := k.MemoryFile().Usage()
	fmt.Fprintf(out, "usage: %d frames, %d heap bytes\n", u.Frames, u.HeapBytes)
	if err := writeMetrics(conf.MetricsFile, out); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("scenario %q: %w", s.Name, runErr)
	}
	return nil
}
