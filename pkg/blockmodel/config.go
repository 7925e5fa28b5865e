package blockmodel

import (
	"math"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config manages model configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	v := viper.New()

	// Model
	v.SetDefault("model.deg_corr", true)
	v.SetDefault("model.directed", false)
	v.SetDefault("model.num_blocks", 1)

	// Optional label inputs
	v.SetDefault("input.node_labels", "")
	v.SetDefault("input.barrier_labels", "")

	// Block-edge index
	v.SetDefault("index.kind", "auto")
	v.SetDefault("index.dense_max_blocks", DefaultDenseMaxBlocks)

	// Entropy terms
	v.SetDefault("entropy.multigraph", true)
	v.SetDefault("entropy.deg_entropy", true)
	v.SetDefault("dl.partition", true)
	v.SetDefault("dl.degree", true)
	v.SetDefault("dl.edges", true)
	v.SetDefault("dl.alt", false)
	v.SetDefault("dl.xi_fast", false)
	v.SetDefault("dl.entropic", false)

	// Proposals
	v.SetDefault("proposal.c", 1.0)
	v.SetDefault("algorithm.random_seed", time.Now().UnixNano())

	// Logging / output
	v.SetDefault("logging.level", "info")
	v.SetDefault("output.format", "json")
	v.SetDefault("output.overlap", false)
	v.SetDefault("analysis.track_moves", false)
	v.SetDefault("analysis.output_file", "moves.jsonl")

	return &Config{v: v}
}

// LoadFromFile loads configuration from file
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

func (c *Config) DegCorr() bool     { return c.v.GetBool("model.deg_corr") }
func (c *Config) Directed() bool    { return c.v.GetBool("model.directed") }
func (c *Config) NumBlocks() int    { return c.v.GetInt("model.num_blocks") }
func (c *Config) IndexKind() string { return c.v.GetString("index.kind") }
func (c *Config) DenseMaxBlocks() int {
	return c.v.GetInt("index.dense_max_blocks")
}

func (c *Config) NodeLabelsFile() string    { return c.v.GetString("input.node_labels") }
func (c *Config) BarrierLabelsFile() string { return c.v.GetString("input.barrier_labels") }

func (c *Config) Multigraph() bool  { return c.v.GetBool("entropy.multigraph") }
func (c *Config) DegEntropy() bool  { return c.v.GetBool("entropy.deg_entropy") }
func (c *Config) PartitionDL() bool { return c.v.GetBool("dl.partition") }
func (c *Config) DegreeDL() bool    { return c.v.GetBool("dl.degree") }
func (c *Config) EdgesDL() bool     { return c.v.GetBool("dl.edges") }
func (c *Config) DLAlt() bool       { return c.v.GetBool("dl.alt") }
func (c *Config) XiFast() bool      { return c.v.GetBool("dl.xi_fast") }
func (c *Config) DLEntropic() bool  { return c.v.GetBool("dl.entropic") }

// ProposalC is the exploration parameter of SampleBlock; "inf" selects
// purely uniform proposals.
func (c *Config) ProposalC() float64 {
	if c.v.GetString("proposal.c") == "inf" {
		return math.Inf(1)
	}
	return c.v.GetFloat64("proposal.c")
}
func (c *Config) RandomSeed() int64 { return c.v.GetInt64("algorithm.random_seed") }

func (c *Config) LogLevel() string     { return c.v.GetString("logging.level") }
func (c *Config) OutputFormat() string { return c.v.GetString("output.format") }
func (c *Config) IncludeOverlap() bool { return c.v.GetBool("output.overlap") }

func (c *Config) EnableMoveTracking() bool   { return c.v.GetBool("analysis.track_moves") }
func (c *Config) TrackingOutputFile() string { return c.v.GetString("analysis.output_file") }

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// EntropyOptions returns the entropy terms selected by the configuration.
func (c *Config) EntropyOptions() EntropyOptions {
	return EntropyOptions{
		Multigraph:  c.Multigraph(),
		DegEntropy:  c.DegEntropy(),
		PartitionDL: c.PartitionDL(),
		DegreeDL:    c.DegreeDL(),
		EdgesDL:     c.EdgesDL(),
		DegDL:       c.DegDLOptions(),
	}
}

// MoveOptions returns the virtual-move terms matching EntropyOptions.
func (c *Config) MoveOptions() MoveOptions {
	return MoveOptions{
		Multigraph:  c.Multigraph(),
		PartitionDL: c.PartitionDL(),
		DegreeDL:    c.DegreeDL(),
		EdgesDL:     c.EdgesDL(),
		DegDL:       c.DegDLOptions(),
	}
}

// DegDLOptions returns the degree description length variant.
func (c *Config) DegDLOptions() DegDLOptions {
	return DegDLOptions{
		Entropic: c.DLEntropic(),
		Alt:      c.DLAlt(),
		XiFast:   c.XiFast(),
	}
}

// ModelConfig is the model and index sections of the configuration.
type ModelConfig struct {
	DegCorr        bool   `mapstructure:"deg_corr"`
	Directed       bool   `mapstructure:"directed"`
	NumBlocks      int    `mapstructure:"num_blocks" validate:"gte=1"`
	IndexKind      string `mapstructure:"-" validate:"oneof=auto dense hash"`
	DenseMaxBlocks int    `mapstructure:"-" validate:"gte=1"`
}

var validate = validator.New()

// Model unmarshals and validates the model and index sections.
func (c *Config) Model() (ModelConfig, error) {
	var raw struct {
		Model ModelConfig `mapstructure:"model"`
		Index struct {
			Kind           string `mapstructure:"kind"`
			DenseMaxBlocks int    `mapstructure:"dense_max_blocks"`
		} `mapstructure:"index"`
	}
	if err := c.v.Unmarshal(&raw); err != nil {
		return ModelConfig{}, errors.Wrap(err, "decoding model config")
	}
	mc := raw.Model
	mc.IndexKind = raw.Index.Kind
	mc.DenseMaxBlocks = raw.Index.DenseMaxBlocks
	if err := validate.Struct(mc); err != nil {
		return mc, errors.Wrap(err, "validating model config")
	}
	return mc, nil
}

// Params builds construction parameters from the configuration. The labels
// are supplied by the caller.
func (c *Config) Params(labels []int, numBlocks int) (Params, error) {
	mc, err := c.Model()
	if err != nil {
		return Params{}, err
	}
	kind, err := ParseIndexKind(mc.IndexKind)
	if err != nil {
		return Params{}, err
	}
	return Params{
		Labels:         labels,
		NumBlocks:      numBlocks,
		DegCorr:        mc.DegCorr,
		Index:          kind,
		DenseMaxBlocks: mc.DenseMaxBlocks,
	}, nil
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "overlap-blockmodel").Logger()
}
