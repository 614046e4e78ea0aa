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

// Package config provides basic infrastructure to set configuration settings
// for vmsim. Each setting is registered as a command-line flag and may also be
// given in a TOML file passed with --config. Flags set explicitly on the
// command line take precedence over the file.
package config

import (
	"fmt"

	"vmsim.dev/vmsim/pkg/log"
	"vmsim.dev/vmsim/pkg/sentry/kernel"
)

// Config holds configuration that is not part of a scenario.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name.
//  3. Register a new flag in flags.go, with same name and add a description.
//  4. Add any necessary validation into validate().
type Config struct {
	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log"`

	// LogFormat is the log format. Valid values are "text" and "json".
	LogFormat string `flag:"log-format" toml:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug"`

	// AlsoLogToStderr allows to send log messages to stderr when a log file
	// is set.
	AlsoLogToStderr bool `flag:"alsologtostderr" toml:"alsologtostderr"`

	// Frames is the number of physical frames in the machine, frame 0
	// included.
	Frames uint `flag:"frames" toml:"frames"`

	// HeapBytes is the kernel heap budget that page tables, address spaces
	// and regions are charged to.
	HeapBytes uint64 `flag:"heap-bytes" toml:"heap-bytes"`

	// CPUs is the number of simulated processors.
	CPUs int `flag:"cpus" toml:"cpus"`

	// Seed seeds TLB replacement.
	Seed int64 `flag:"seed" toml:"seed"`

	// MetricsFile is where metrics are written in Prometheus text format
	// when a command finishes. "-" means stdout. Empty disables it.
	MetricsFile string `flag:"metrics" toml:"metrics"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if c.Frames < 2 {
		return fmt.Errorf("frames must be at least 2, got %d", c.Frames)
	}
	if c.Frames > 1<<20 {
		return fmt.Errorf("frames must fit the 32-bit physical space, got %d", c.Frames)
	}
	if c.CPUs < 1 {
		return fmt.Errorf("cpus must be at least 1, got %d", c.CPUs)
	}
	return nil
}

// Kernel returns the machine described by c.
func (c *Config) Kernel() kernel.Config {
	return kernel.Config{
		Frames:    uint32(c.Frames),
		HeapBytes: c.HeapBytes,
		CPUs:      c.CPUs,
		Seed:      c.Seed,
	}
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config.Frames: %d", c.Frames)
	log.Infof("Config.HeapBytes: %d", c.HeapBytes)
	log.Infof("Config.CPUs: %d", c.CPUs)
	log.Infof("Config.Seed: %d", c.Seed)
	log.Infof("Config.Debug: %t", c.Debug)
	log.Infof("Config.LogFormat: %s", c.LogFormat)
}
