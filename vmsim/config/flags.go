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

package config

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"

	"github.com/BurntSushi/toml"
)

// fileFlagName is the flag naming the TOML configuration file. It is not a
// Config field since the file cannot name itself.
const fileFlagName = "config"

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String(fileFlagName, "", "path to a TOML file with settings keyed by flag name. Flags given on the command line override it.")

	// Debugging flags.
	flagSet.String("log", "", "file path where internal debug information is written, default is stderr.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.Bool("alsologtostderr", false, "send log messages to stderr as well as --log.")
	flagSet.String("metrics", "", "file path where metrics are written in Prometheus text format when the command finishes. '-' writes to stdout.")

	// Flags that describe the machine.
	flagSet.Uint("frames", 512, "number of 4K physical frames, including the reserved frame 0.")
	flagSet.Uint64("heap-bytes", 1<<20, "kernel heap budget in bytes for page tables, address spaces and regions.")
	flagSet.Int("cpus", 1, "number of simulated CPUs.")
	flagSet.Int64("seed", 1, "seed for random TLB replacement. CPU i uses seed+i.")
}

// NewFromFlags creates a new Config with values coming from command line flags
// and, when --config is set, from the TOML file it names.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}

	explicit := make(map[string]bool)
	flagSet.Visit(func(fl *flag.Flag) { explicit[fl.Name] = true })

	var (
		fromFile Config
		md       toml.MetaData
	)
	if path := flagSet.Lookup(fileFlagName).Value.String(); path != "" {
		var err error
		md, err = loadFile(path, &fromFile)
		if err != nil {
			return nil, err
		}
	}

	obj := reflect.ValueOf(conf).Elem()
	file := reflect.ValueOf(&fromFile).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if !explicit[name] && md.IsDefined(name) {
			obj.Field(i).Set(file.Field(i))
			continue
		}
		x := reflect.ValueOf(fl.Value.(flag.Getter).Get())
		obj.Field(i).Set(x)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// loadFile decodes the TOML file at path into conf. Keys are flag names.
func loadFile(path string, conf *Config) (toml.MetaData, error) {
	md, err := toml.DecodeFile(path, conf)
	if err != nil {
		return md, fmt.Errorf("reading config file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return md, fmt.Errorf("config file %q: unknown keys %v", path, undecoded)
	}
	return md, nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
