package strategy

import (
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// File is the on-disk strategy catalog: a set of named strategies plus which
// one is active. Example:
//
//	active: scalp
//	strategies:
//	  - name: scalp
//	    weights:
//	      pressure: 40
//	      ema_cross: 20
//	  - name: swing
//	    weights:
//	      ema_alignment: 30
//	      pattern_at_level: 25
type File struct {
	Active     string     `mapstructure:"active"`
	Strategies []Strategy `mapstructure:"strategies"`
}

// Find returns the named strategy from the catalog.
func (f File) Find(name string) (Strategy, bool) {
	for _, s := range f.Strategies {
		if s.Name == name {
			return s, true
		}
	}
	return Strategy{}, false
}

// LoadFile reads and validates a strategy catalog. An empty path yields a
// catalog holding only the default strategy.
func LoadFile(path string) (File, error) {
	if path == "" {
		def := DefaultStrategy()
		return File{Active: def.Name, Strategies: []Strategy{def}}, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return File{}, fmt.Errorf("read strategy file: %w", err)
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return File{}, fmt.Errorf("unmarshal strategy file: %w", err)
	}
	for _, s := range f.Strategies {
		if err := s.Validate(); err != nil {
			return File{}, err
		}
	}
	if _, ok := f.Find(f.Active); !ok {
		return File{}, fmt.Errorf("active strategy %q not defined", f.Active)
	}
	return f, nil
}

// Watch reloads the strategy file on change and swaps the active strategy
// into the aggregator. Bad edits are logged and skipped; the previous
// strategy stays active. Returns immediately; watching runs on viper's
// internal goroutine for the process lifetime.
func Watch(path string, agg *Aggregator) error {
	if path == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read strategy file: %w", err)
	}

	v.OnConfigChange(func(fsnotify.Event) {
		f, err := LoadFile(path)
		if err != nil {
			slog.Error("strategy reload rejected", "path", path, "err", err)
			return
		}
		active, _ := f.Find(f.Active)
		if err := agg.SetStrategy(active); err != nil {
			slog.Error("strategy swap rejected", "strategy", active.Name, "err", err)
			return
		}
		slog.Info("strategy swapped", "strategy", active.Name)
	})
	v.WatchConfig()
	return nil
}
