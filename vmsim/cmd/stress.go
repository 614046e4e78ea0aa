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
	"vmsim.dev/vmsim/vmsim/stress"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	opts stress.Options
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "run concurrent process lifecycles on every CPU"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags] - boot a machine and load, fork and exit processes on every CPU at once.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	d := stress.DefaultOptions
	f.IntVar(&s.opts.Iterations, "iterations", d.Iterations, "process lifecycles per CPU.")
	f.IntVar(&s.opts.Pages, "pages", d.Pages, "data pages each process writes.")
	f.Uint64Var(&s.opts.Retries, "retries", d.Retries, "retries of a lifecycle that ran out of memory. 0 retries without bound.")
	f.DurationVar(&s.opts.RetryDelay, "retry-delay", d.RetryDelay, "wait between retries.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := s.run(ctx, conf, os.Stdout); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

func (s *Stress) run(ctx context.Context, conf *config.Config, out io.Writer) error {
	k, err := boot(conf)
	if err != nil {
		return err
	}
	res, runErr := stress.Run(ctx, k, s.opts)
	k.Shutdown()
	u := k.MemoryFile().Usage()
	fmt.Fprintf(out, "%d cycles, %d retries\n", res.Cycles, res.Retries)
	fmt.Fprintf(out, "usage: %d frames, %d heap bytes\n", u.Frames, u.HeapBytes)
	if err := writeMetrics(conf.MetricsFile, out); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if u.Frames != 0 || u.HeapBytes != 0 {
		return fmt.Errorf("leaked %d frames and %d heap bytes", u.Frames, u.HeapBytes)
	}
	return nil
}
