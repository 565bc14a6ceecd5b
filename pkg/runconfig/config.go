// Package runconfig holds the per-run options a caller may pass to the
// benchmark entry points.
package runconfig

import (
	"time"

	"go.uber.org/zap"
)

// Config is the set of recognised run options. A nil *Config means defaults.
type Config struct {
	BenchTime     time.Duration // per-benchmark target duration for toolchain runs
	Count         int           // how many times each benchmark is run
	NoBenchMem    bool          // skip allocation statistics; collected unless set
	ArtifactsPath string        // where reports and logs are written
	Filters       []string      // glob patterns matched against benchmark names

	// Loggers receive user facing output such as --info and --list.
	Loggers []*zap.Logger
}

// Default returns the options used when the caller passes none.
func Default() *Config {
	return &Config{
		BenchTime:     time.Second,
		Count:         1,
		ArtifactsPath: "./benchrun-artifacts",
	}
}

// Resolve returns a copy of cfg with zero values filled from Default.
// The caller's value is never modified.
func Resolve(cfg *Config) *Config {
	def := Default()
	if cfg == nil {
		return def
	}

	out := *cfg
	if out.BenchTime <= 0 {
		out.BenchTime = def.BenchTime
	}
	if out.Count <= 0 {
		out.Count = def.Count
	}
	if out.ArtifactsPath == "" {
		out.ArtifactsPath = def.ArtifactsPath
	}
	out.Filters = append([]string(nil), cfg.Filters...)
	out.Loggers = append([]*zap.Logger(nil), cfg.Loggers...)
	return &out
}

// BenchMem reports whether allocation statistics are collected.
func (c *Config) BenchMem() bool {
	return !c.NoBenchMem
}

// AddLogger returns cfg with l appended to its loggers.
func (c *Config) AddLogger(l *zap.Logger) *Config {
	c.Loggers = append(c.Loggers, l)
	return c
}

// Log writes msg at info level to every configured logger.
func (c *Config) Log(msg string, fields ...zap.Field) {
	for _, l := range c.Loggers {
		l.Info(msg, fields...)
	}
}
