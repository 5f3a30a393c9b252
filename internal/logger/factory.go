package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Factory builds component loggers that share one set of outputs. A
// process constructs one Factory at startup and derives a Logger per
// component from it.
type Factory struct {
	config *Config

	mu        sync.Mutex
	shared    *core
	instances map[string]Logger
}

// core owns the writers behind every logger the factory hands out.
type core struct {
	logrus  *logrus.Logger
	async   *AsyncWriter
	file    io.Closer
	metrics *Metrics

	closeOnce sync.Once
}

// NewFactory validates config and returns a factory for it. A nil config
// means DefaultConfig.
func NewFactory(config *Config) (*Factory, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Factory{
		config:    config,
		instances: make(map[string]Logger),
	}, nil
}

// Create returns the logger for component, building the shared outputs on
// first use. Repeated calls with the same component return the same
// instance.
func (f *Factory) Create(component string) (Logger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.instances[component]; ok {
		return l, nil
	}

	if f.shared == nil {
		c, err := buildCore(f.config)
		if err != nil {
			return nil, fmt.Errorf("logger: %s: %w", component, err)
		}
		f.shared = c
	}

	hostname, _ := os.Hostname()
	l := &entryLogger{
		core: f.shared,
		entry: f.shared.logrus.WithFields(logrus.Fields{
			"service":   "s3archiver",
			"component": component,
			"pid":       os.Getpid(),
			"hostname":  hostname,
		}),
	}
	f.instances[component] = l
	return l, nil
}

// Metrics returns counters for everything logged through this factory's
// loggers so far.
func (f *Factory) Metrics() MetricsSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shared == nil {
		return MetricsSnapshot{LogsByLevel: map[string]int64{}}
	}
	return f.shared.metrics.Snapshot()
}

// Close flushes and closes the shared outputs.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shared == nil {
		return nil
	}
	return f.shared.close()
}

func buildCore(config *Config) (*core, error) {
	base := logrus.New()

	level, err := parseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	base.SetLevel(level)

	if config.Format == "text" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   config.Console.ForceColors,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{})
	}

	c := &core{logrus: base, metrics: NewMetrics()}
	base.AddHook(c.metrics)

	var outputs []io.Writer
	if config.Console.Enabled {
		outputs = append(outputs, os.Stdout)
	}

	if config.File.Enabled {
		if err := os.MkdirAll(filepath.Dir(config.File.Path), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		rotated := &lumberjack.Logger{
			Filename:   config.File.Path,
			MaxSize:    config.Rotation.MaxSizeMB,
			MaxAge:     config.Rotation.MaxAgeDays,
			MaxBackups: config.Rotation.MaxBackups,
			Compress:   config.Rotation.Compress,
		}
		c.file = rotated

		if config.Async.Enabled {
			c.async = NewAsyncWriter(rotated, config.Async)
			c.async.Start()
			outputs = append(outputs, c.async)
		} else {
			outputs = append(outputs, rotated)
		}
	}

	switch len(outputs) {
	case 0:
		base.SetOutput(io.Discard)
	case 1:
		base.SetOutput(outputs[0])
	default:
		base.SetOutput(io.MultiWriter(outputs...))
	}

	return c, nil
}

func (c *core) flush() error {
	if c.async != nil {
		return c.async.Flush()
	}
	return nil
}

func (c *core) close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.async != nil {
			err = c.async.Stop()
		}
		if c.file != nil {
			if cerr := c.file.Close(); err == nil {
				err = cerr
			}
		}
		c.logrus.SetOutput(io.Discard)
	})
	return err
}
