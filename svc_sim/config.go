package svc_sim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// CheckpointConfig describes one competition stage.
type CheckpointConfig struct {
	Kind      string  `mapstructure:"kind" yaml:"kind"`
	Name      string  `mapstructure:"name" yaml:"name,omitempty"`
	Weight    float64 `mapstructure:"weight" yaml:"weight"`
	Namespace string  `mapstructure:"namespace" yaml:"namespace,omitempty"`
}

// CompetitionConfig controls stage sequencing and score publication.
type CompetitionConfig struct {
	ScoreFrequency float64            `mapstructure:"score_frequency" yaml:"score_frequency"`
	PickUpLocation string             `mapstructure:"pick_up_location" yaml:"pick_up_location"`
	Checkpoints    []CheckpointConfig `mapstructure:"checkpoints" yaml:"checkpoints"`
}

// FollowConfig controls one guest actor's follow behaviour.
type FollowConfig struct {
	Actor           string   `mapstructure:"actor" yaml:"actor"`
	Velocity        float64  `mapstructure:"velocity" yaml:"velocity"`
	MinDistance     float64  `mapstructure:"min_distance" yaml:"min_distance"`
	MaxDistance     float64  `mapstructure:"max_distance" yaml:"max_distance"`
	PickUpRadius    float64  `mapstructure:"pickup_radius" yaml:"pickup_radius"`
	ObstacleMargin  float64  `mapstructure:"obstacle_margin" yaml:"obstacle_margin"`
	AnimationFactor float64  `mapstructure:"animation_factor" yaml:"animation_factor"`
	IgnoreObstacles []string `mapstructure:"ignore_obstacle" yaml:"ignore_obstacle,omitempty"`
	Animation       string   `mapstructure:"animation" yaml:"animation"`
}

// ModelConfig places a model in the kinematic world.
type ModelConfig struct {
	Name       string    `mapstructure:"name" yaml:"name"`
	Position   []float64 `mapstructure:"position" yaml:"position"`
	Size       []float64 `mapstructure:"size" yaml:"size"`
	Yaw        float64   `mapstructure:"yaw" yaml:"yaw,omitempty"`
	Actor      bool      `mapstructure:"actor" yaml:"actor,omitempty"`
	Animations []string  `mapstructure:"animations" yaml:"animations,omitempty"`
}

// ZoneConfig defines a contains detector watching one entity.
type ZoneConfig struct {
	Namespace string    `mapstructure:"namespace" yaml:"namespace"`
	Entity    string    `mapstructure:"entity" yaml:"entity"`
	Center    []float64 `mapstructure:"center" yaml:"center"`
	Size      []float64 `mapstructure:"size" yaml:"size"`
}

// WorldConfig seeds the kinematic world.
type WorldConfig struct {
	Models []ModelConfig `mapstructure:"models" yaml:"models"`
	Zones  []ZoneConfig  `mapstructure:"zones" yaml:"zones"`
}

// LiveConfig controls the UDP request listener.
type LiveConfig struct {
	UDPAddr    string `mapstructure:"udp_addr" yaml:"udp_addr"`
	ReadBuffer int    `mapstructure:"read_buffer" yaml:"read_buffer"`
}

// OutputConfig controls UDP score publication.
type OutputConfig struct {
	UDPAddr string `mapstructure:"udp_addr" yaml:"udp_addr"`
}

// LogConfig controls per-tick console tracing.
type LogConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// AppConfig aggregates all configuration sections.
type AppConfig struct {
	Hz          float64           `mapstructure:"hz" yaml:"hz"`
	Competition CompetitionConfig `mapstructure:"competition" yaml:"competition"`
	Guests      []FollowConfig    `mapstructure:"-" yaml:"guests"`
	World       WorldConfig       `mapstructure:"world" yaml:"world"`
	Live        LiveConfig        `mapstructure:"live" yaml:"live"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Viz         VizConfig         `mapstructure:"viz" yaml:"viz"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

const (
	defaultHz             = 100.0
	defaultScoreFrequency = 50.0
	defaultReadBuffer     = 2048
	defaultVizAddr        = "127.0.0.1:7070"
)

// DefaultFollowConfig returns the follow settings used when a key is absent.
func DefaultFollowConfig() FollowConfig {
	return FollowConfig{
		Velocity:        0.8,
		MinDistance:     1.2,
		MaxDistance:     4,
		PickUpRadius:    2,
		ObstacleMargin:  0.5,
		AnimationFactor: 5.1,
		Animation:       "animation",
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hz", defaultHz)
	v.SetDefault("competition.score_frequency", defaultScoreFrequency)
	v.SetDefault("live.read_buffer", defaultReadBuffer)
	v.SetDefault("viz.addr", defaultVizAddr)
}

func setFollowDefaults(v *viper.Viper) {
	d := DefaultFollowConfig()
	v.SetDefault("velocity", d.Velocity)
	v.SetDefault("min_distance", d.MinDistance)
	v.SetDefault("max_distance", d.MaxDistance)
	v.SetDefault("pickup_radius", d.PickUpRadius)
	v.SetDefault("obstacle_margin", d.ObstacleMargin)
	v.SetDefault("animation_factor", d.AnimationFactor)
	v.SetDefault("animation", d.Animation)
}

// LoadConfig reads a YAML or JSON config from disk. An empty path yields the
// DefaultConfig scenario.
func LoadConfig(path string) (AppConfig, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}
	return decodeConfig(v)
}

func decodeConfig(v *viper.Viper) (AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	// List items cannot carry viper defaults, so each guest is decoded on its own.
	raw, _ := v.Get("guests").([]any)
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return cfg, fmt.Errorf("guests[%d]: expected a mapping", i)
		}
		gv := viper.New()
		setFollowDefaults(gv)
		if err := gv.MergeConfigMap(m); err != nil {
			return cfg, fmt.Errorf("guests[%d]: %w", i, err)
		}
		fc := DefaultFollowConfig()
		if err := gv.Unmarshal(&fc); err != nil {
			return cfg, fmt.Errorf("guests[%d]: %w", i, err)
		}
		cfg.Guests = append(cfg.Guests, fc)
	}

	for i := range cfg.Competition.Checkpoints {
		cp := &cfg.Competition.Checkpoints[i]
		if cp.Kind == "" {
			cp.Kind = KindContain
		}
		cp.Kind = strings.ToLower(strings.TrimSpace(cp.Kind))
	}
	return cfg, nil
}

// DefaultConfig returns a runnable single-guest scenario.
func DefaultConfig() AppConfig {
	guest := DefaultFollowConfig()
	guest.Actor = "guest"
	guest.IgnoreObstacles = []string{"ground_plane"}
	return AppConfig{
		Hz: defaultHz,
		Competition: CompetitionConfig{
			ScoreFrequency: defaultScoreFrequency,
			PickUpLocation: "FrontElevator",
			Checkpoints: []CheckpointConfig{
				{Kind: KindGoToPickUp, Weight: 1, Namespace: "go_to_pick_up"},
			},
		},
		Guests: []FollowConfig{guest},
		World: WorldConfig{
			Models: []ModelConfig{
				{Name: "guest", Position: []float64{5, 0, 1}, Size: []float64{0.5, 0.5, 1.8}, Actor: true, Animations: []string{"animation"}},
				{Name: "robot", Position: []float64{0, 0, 0.25}, Size: []float64{0.5, 0.5, 0.5}},
			},
			Zones: []ZoneConfig{
				{Namespace: "go_to_pick_up", Entity: "robot", Center: []float64{4, 0, 0.5}, Size: []float64{2, 2, 1}},
			},
		},
		Live:   LiveConfig{UDPAddr: "127.0.0.1:9870", ReadBuffer: defaultReadBuffer},
		Output: OutputConfig{UDPAddr: "127.0.0.1:9871"},
		Viz:    VizConfig{Addr: defaultVizAddr},
	}
}

// Validate checks the follow settings.
func (c FollowConfig) Validate() error {
	var err error
	if c.Actor == "" {
		err = multierr.Append(err, errors.New("actor must be set"))
	}
	if c.Velocity < 0 {
		err = multierr.Append(err, fmt.Errorf("velocity must be >= 0, got %g", c.Velocity))
	}
	if c.MinDistance < 0 {
		err = multierr.Append(err, fmt.Errorf("min_distance must be >= 0, got %g", c.MinDistance))
	}
	if c.MaxDistance < c.MinDistance {
		err = multierr.Append(err, fmt.Errorf("max_distance %g below min_distance %g", c.MaxDistance, c.MinDistance))
	}
	if c.PickUpRadius < 0 {
		err = multierr.Append(err, fmt.Errorf("pickup_radius must be >= 0, got %g", c.PickUpRadius))
	}
	if c.ObstacleMargin < 0 {
		err = multierr.Append(err, fmt.Errorf("obstacle_margin must be >= 0, got %g", c.ObstacleMargin))
	}
	return err
}

// Validate checks the competition settings.
func (c CompetitionConfig) Validate() error {
	var err error
	if c.ScoreFrequency <= 0 {
		err = multierr.Append(err, fmt.Errorf("score_frequency must be > 0, got %g", c.ScoreFrequency))
	}
	for i, cp := range c.Checkpoints {
		if _, ok := checkpointKinds[cp.Kind]; !ok {
			err = multierr.Append(err, fmt.Errorf("checkpoints[%d]: %w %q", i, ErrUnknownCheckpointKind, cp.Kind))
		}
		if cp.Weight < 0 {
			err = multierr.Append(err, fmt.Errorf("checkpoints[%d]: weight must be >= 0, got %g", i, cp.Weight))
		}
	}
	return err
}

// Validate reports every problem in the configuration at once.
func (c AppConfig) Validate() error {
	var err error
	if c.Hz <= 0 {
		err = multierr.Append(err, fmt.Errorf("hz must be > 0, got %g", c.Hz))
	}
	if cerr := c.Competition.Validate(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("competition: %w", cerr))
	}
	for i, g := range c.Guests {
		if gerr := g.Validate(); gerr != nil {
			err = multierr.Append(err, fmt.Errorf("guests[%d]: %w", i, gerr))
		}
	}
	return err
}

// vec builds a vector from up to three components, missing ones are zero.
func vec(xs []float64) r3.Vector {
	var v r3.Vector
	if len(xs) > 0 {
		v.X = xs[0]
	}
	if len(xs) > 1 {
		v.Y = xs[1]
	}
	if len(xs) > 2 {
		v.Z = xs[2]
	}
	return v
}
