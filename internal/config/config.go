// Package config holds the settings for a threadtree run, loaded from defaults, an optional YAML
// file, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sharnoff/threadtree"
)

const (
	DefaultStages  = 4
	DefaultWorkers = 4
	DefaultWork    = time.Second
)

// Config defines all options for a run.
type Config struct {
	// Stages is the number of stages in the task.
	Stages int `yaml:"stages"`
	// Workers is the number of workers in the first stage.
	Workers int `yaml:"workers"`
	// Work is how long each worker sleeps before registering.
	Work time.Duration `yaml:"work"`
	// Policy is one of reject, clamp, or allow-empty. See threadtree.CapacityPolicy.
	Policy string `yaml:"policy"`
	// Timeout bounds how long to wait for the task to drain. Zero waits forever.
	Timeout time.Duration `yaml:"timeout"`
	// Verbose prints the configuration and task shape before running.
	Verbose bool `yaml:"verbose"`
}

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		Stages:  DefaultStages,
		Workers: DefaultWorkers,
		Work:    DefaultWork,
		Policy:  threadtree.Reject.String(),
	}
}

// Load reads the YAML file at path on top of the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return c, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return c, nil
}

// CapacityPolicy parses Policy
func (c Config) CapacityPolicy() (threadtree.CapacityPolicy, error) {
	return threadtree.ParseCapacityPolicy(c.Policy)
}

// Validate checks that the configuration describes a task that can be built.
func (c Config) Validate() error {
	policy, err := c.CapacityPolicy()
	if err != nil {
		return err
	}
	if c.Work < 0 {
		return errors.New("work duration must not be negative")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	_, err = threadtree.Capacities(c.Stages, c.Workers, policy)
	return err
}

// Dump writes the configuration as an aligned option/value table.
func (c Config) Dump(w io.Writer) {
	fmt.Fprintf(w, "%10s %s\n", "option", "value")
	fmt.Fprintf(w, "%10s %d\n", "stages", c.Stages)
	fmt.Fprintf(w, "%10s %d\n", "workers", c.Workers)
	fmt.Fprintf(w, "%10s %s\n", "work", c.Work)
	fmt.Fprintf(w, "%10s %s\n", "policy", c.Policy)
	fmt.Fprintf(w, "%10s %s\n", "timeout", c.Timeout)
	fmt.Fprintf(w, "%10s %t\n", "verbose", c.Verbose)
}
