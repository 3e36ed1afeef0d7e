package arcseq

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mpyw/arcseq/internal/arc"
)

// Config controls the optimizer. It is usually read from a YAML file:
//
//	enable_loop_arc: true
//	max_iterations: 32
//	freeze_epilogue_releases: true
//	autorelease_pool_funcs:
//	  - objc_autoreleasePoolPush
//	  - objc_autoreleasePoolPop
type Config struct {
	// EnableLoopARC selects the loop-region dataflow instead of the plain
	// block dataflow.
	EnableLoopARC bool `yaml:"enable_loop_arc"`
	// MaxIterations bounds every fixpoint loop of the driver.
	MaxIterations int `yaml:"max_iterations"`
	// AutoreleasePoolFuncs names the callees that push or pop an
	// autorelease pool.
	AutoreleasePoolFuncs []string `yaml:"autorelease_pool_funcs"`
	// FreezeEpilogueReleases enables the follow-up run that keeps the final
	// releases of owned arguments in place.
	FreezeEpilogueReleases bool `yaml:"freeze_epilogue_releases"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		EnableLoopARC:          true,
		MaxIterations:          arc.DefaultMaxIterations,
		AutoreleasePoolFuncs:   []string{"objc_autoreleasePoolPush", "objc_autoreleasePoolPop"},
		FreezeEpilogueReleases: true,
	}
}

// LoadConfig reads a YAML configuration. Keys missing from the file keep
// their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration over the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration values that cannot work.
func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("invalid config: max_iterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}

func (c Config) options() arc.Options {
	return arc.Options{
		EnableLoopARC:          c.EnableLoopARC,
		MaxIterations:          c.MaxIterations,
		FreezeEpilogueReleases: c.FreezeEpilogueReleases,
	}
}
