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

// Package cmd holds implementations of the vmsim commands.
package cmd

import (
	"fmt"
	"io"
	"os"

	"vmsim.dev/vmsim/pkg/log"
	"vmsim.dev/vmsim/pkg/metric"
	"vmsim.dev/vmsim/pkg/sentry/kernel"
	"vmsim.dev/vmsim/vmsim/config"
)

// Fatalf logs to stderr and the log, then exits with status 128.
func Fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	log.Warningf("FATAL ERROR: "+format, args...)
	os.Exit(128)
}

// boot starts the machine described by conf.
func boot(conf *config.Config) (*kernel.Kernel, error) {
	k, err := kernel.New(conf.Kernel())
	if err != nil {
		return nil, fmt.Errorf("booting: %w", err)
	}
	return k, nil
}

// writeMetrics writes every metric in Prometheus text format to path, or to
// stdout if path is "-". An empty path writes nothing.
func writeMetrics(path string, stdout io.Writer) (retErr error) {
	var w io.Writer
	switch path {
	case "":
		return nil
	case "-":
		w = stdout
	default:
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating metrics file: %w", err)
		}
		defer func() {
			if err := f.Close(); retErr == nil {
				retErr = err
			}
		}()
		w = f
	}
	if err := metric.WritePrometheus(w); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
