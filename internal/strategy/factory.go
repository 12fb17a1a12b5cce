package strategy

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

// Factory errors
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
	ErrInvalidParam        = errors.New("invalid strategy parameter")
	ErrInvalidLookback     = errors.New("lookback must be positive")
	ErrHorizonTooShort     = errors.New("history horizon must cover the co-occurrence window")
	ErrNegativeDuration    = errors.New("durations must not be negative")
	ErrNegativeCeiling     = errors.New("market cap ceiling must not be negative")
	ErrMissingMarketCaps   = errors.New("fast-sell requires a market cap source")
)

// Parameter keys accepted in batch configs.
const (
	ParamMaxHoldTimeSec = "max_hold_time_sec"
	ParamTimeWindowSec  = "time_window_sec"
	ParamMinClusterSize = "min_cluster_size"
	ParamMinClusters    = "min_clusters"
	ParamMinTokens      = "min_tokens"
	ParamLookbackHours  = "lookback_hours"
	ParamWorkers        = "workers"
	ParamWindowSec      = "window_sec"
	ParamMinGroupSize   = "min_group_size"
	ParamMinSightings   = "min_sightings"
	ParamCooldownSec    = "cooldown_sec"
	ParamHorizonSec     = "horizon_sec"
)

// Params holds strategy parameters as decoded from YAML. Numbers may be
// ints or floats; missing keys keep their defaults.
type Params map[string]any

// Number returns the numeric value at key, or def when absent.
func (p Params) Number(key string, def float64) (float64, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidParam, key, raw)
	}
}

// Int returns the integer value at key, or def when absent.
func (p Params) Int(key string, def int) (int, error) {
	v, err := p.Number(key, float64(def))
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidParam, key, v)
	}
	return int(v), nil
}

// Duration returns the value at key scaled by unit, or def when absent.
func (p Params) Duration(key string, unit, def time.Duration) (time.Duration, error) {
	v, err := p.Number(key, def.Seconds()/unit.Seconds())
	if err != nil {
		return 0, err
	}
	return time.Duration(v * float64(unit)), nil
}

// Constructor builds a batch strategy from params.
type Constructor func(Params) (Batch, error)

// Registry maps strategy names and their aliases to constructors.
type Registry struct {
	ctors   map[string]Constructor
	aliases map[string]string
}

// NewRegistry returns a registry holding the built-in batch strategies.
// The CamelCase aliases are the names used by existing YAML configs.
func NewRegistry() *Registry {
	r := &Registry{
		ctors:   make(map[string]Constructor),
		aliases: make(map[string]string),
	}
	r.Register("sequence", fromSequenceParams, "SequenceStrategy")
	r.Register("kill-follow", fromKillFollowParams, "KillFollowStrategy", "kill_follow")
	r.Register("group-replay", fromGroupReplayParams, "GroupReplayStrategy", "group_replay")
	return r
}

// Register adds a constructor under name and aliases, replacing any
// previous registration.
func (r *Registry) Register(name string, c Constructor, aliases ...string) {
	r.ctors[name] = c
	for _, a := range aliases {
		r.aliases[a] = name
	}
}

// Resolve returns the canonical name for name or one of its aliases.
func (r *Registry) Resolve(name string) (string, bool) {
	if _, ok := r.ctors[name]; ok {
		return name, true
	}
	canon, ok := r.aliases[name]
	return canon, ok
}

// Names returns the canonical names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// New creates a strategy by name or alias.
func (r *Registry) New(name string, params Params) (Batch, error) {
	canon, ok := r.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategyType, name)
	}
	s, err := r.ctors[canon](params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", canon, err)
	}
	return s, nil
}

// FromConfig creates a built-in batch strategy by name or alias.
func FromConfig(name string, params Params) (Batch, error) {
	return NewRegistry().New(name, params)
}

func fromSequenceParams(p Params) (Batch, error) {
	cfg := DefaultSequenceConfig()
	var err error
	if cfg.Detector.Window, err = p.Duration(ParamTimeWindowSec, time.Second, cfg.Detector.Window); err != nil {
		return nil, err
	}
	if cfg.Detector.MinClusterSize, err = p.Int(ParamMinClusterSize, cfg.Detector.MinClusterSize); err != nil {
		return nil, err
	}
	if cfg.Detector.MinClusters, err = p.Int(ParamMinClusters, cfg.Detector.MinClusters); err != nil {
		return nil, err
	}
	if cfg.Lookback, err = p.Duration(ParamLookbackHours, time.Hour, cfg.Lookback); err != nil {
		return nil, err
	}
	if cfg.Workers, err = p.Int(ParamWorkers, cfg.Workers); err != nil {
		return nil, err
	}
	s, err := NewSequence(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func fromKillFollowParams(p Params) (Batch, error) {
	cfg := DefaultKillFollowConfig()
	var err error
	if cfg.Detector.MaxHold, err = p.Duration(ParamMaxHoldTimeSec, time.Second, cfg.Detector.MaxHold); err != nil {
		return nil, err
	}
	if cfg.Detector.MinTokens, err = p.Int(ParamMinTokens, cfg.Detector.MinTokens); err != nil {
		return nil, err
	}
	if cfg.Lookback, err = p.Duration(ParamLookbackHours, time.Hour, cfg.Lookback); err != nil {
		return nil, err
	}
	if cfg.Workers, err = p.Int(ParamWorkers, cfg.Workers); err != nil {
		return nil, err
	}
	s, err := NewKillFollow(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func fromGroupReplayParams(p Params) (Batch, error) {
	cfg := DefaultGroupReplayConfig()
	co := &cfg.CoOccurrence
	var err error
	if co.Group.Window, err = p.Duration(ParamWindowSec, time.Second, co.Group.Window); err != nil {
		return nil, err
	}
	if co.Group.MinGroupSize, err = p.Int(ParamMinGroupSize, co.Group.MinGroupSize); err != nil {
		return nil, err
	}
	if co.Group.MinSightings, err = p.Int(ParamMinSightings, co.Group.MinSightings); err != nil {
		return nil, err
	}
	if co.Cooldown, err = p.Duration(ParamCooldownSec, time.Second, co.Cooldown); err != nil {
		return nil, err
	}
	if co.Horizon, err = p.Duration(ParamHorizonSec, time.Second, co.Horizon); err != nil {
		return nil, err
	}
	if cfg.Lookback, err = p.Duration(ParamLookbackHours, time.Hour, cfg.Lookback); err != nil {
		return nil, err
	}
	s, err := NewGroupReplay(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}
