package logging

import (
	"sort"

	"go.uber.org/zap/zapcore"
)

// newSampledCore wraps core with level-aware sampling. Each level listed in
// cfg.Levels gets its own sampler; unlisted levels and Error and above pass
// through untouched.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}

	levels := make([]zapcore.Level, 0, len(cfg.Levels))
	for lvl := range cfg.Levels {
		if lvl < zapcore.ErrorLevel {
			levels = append(levels, lvl)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	sampled := make(map[zapcore.Level]bool, len(levels))
	cores := make([]zapcore.Core, 0, len(levels)+1)
	for _, lvl := range levels {
		rate := cfg.Levels[lvl]
		sampled[lvl] = true
		only := &levelFilterCore{Core: core, accept: func(l zapcore.Level) bool { return l == lvl }}
		cores = append(cores, zapcore.NewSamplerWithOptions(only, cfg.Tick, rate.Initial, rate.Thereafter))
	}

	cores = append(cores, &levelFilterCore{Core: core, accept: func(l zapcore.Level) bool { return !sampled[l] }})
	return zapcore.NewTee(cores...)
}

// levelFilterCore forwards only the levels accepted by its predicate.
type levelFilterCore struct {
	zapcore.Core
	accept func(zapcore.Level) bool
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.accept(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.accept(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{
		Core:   c.Core.With(fields),
		accept: c.accept,
	}
}
