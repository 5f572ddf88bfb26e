// Package book reads the position book: the symbols to trade and the
// parameters each record starts from.
package book

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"ratchet/internal/logger"
	"ratchet/internal/position"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const bookSchema = `{
  "type": "object",
  "required": ["positions"],
  "additionalProperties": false,
  "properties": {
    "positions": {
      "type": ["object", "null"],
      "additionalProperties": {
        "type": "object",
        "additionalProperties": false,
        "anyOf": [{"required": ["funding"]}, {"required": ["quantity"]}],
        "properties": {
          "funding": {"type": "number"},
          "quantity": {"type": "number"},
          "trailing_offset": {"type": "number"},
          "trade_fraction": {"type": "number"},
          "margin_protection": {"type": "number"},
          "safety_bands": {"type": "integer", "minimum": 0},
          "disabled": {"type": "boolean"}
        }
      }
    }
  }
}`

// Entry is one symbol's starting parameters.
type Entry struct {
	Symbol           string  `yaml:"-"`
	Funding          float64 `yaml:"funding"`
	Quantity         float64 `yaml:"quantity"`
	TrailingOffset   float64 `yaml:"trailing_offset"`
	TradeFraction    float64 `yaml:"trade_fraction"`
	MarginProtection float64 `yaml:"margin_protection"`
	SafetyBands      int     `yaml:"safety_bands"`
	Disabled         bool    `yaml:"disabled"`
}

func (e Entry) Params() position.Params {
	return position.Params{
		Symbol:           e.Symbol,
		Funding:          e.Funding,
		Quantity:         e.Quantity,
		TrailingOffset:   e.TrailingOffset,
		TradeFraction:    e.TradeFraction,
		MarginProtection: e.MarginProtection,
		SafetyBands:      e.SafetyBands,
	}
}

type fileConfig struct {
	Positions map[string]Entry `yaml:"positions"`
}

// Snapshot is the book as of one load.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Entries  map[string]Entry
}

// Symbols returns the enabled symbols in order.
func (s Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.Entries))
	for sym, e := range s.Entries {
		if !e.Disabled {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// Added returns the enabled entries of s that prev did not have enabled.
func (s Snapshot) Added(prev Snapshot) []Entry {
	var out []Entry
	for _, sym := range s.Symbols() {
		if old, ok := prev.Entries[sym]; ok && !old.Disabled {
			continue
		}
		out = append(out, s.Entries[sym])
	}
	return out
}

type ChangeListener func(prev, next Snapshot)

type Book struct {
	path   string
	schema *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
	v         *viper.Viper
}

// Load reads and validates path. Call Watch to follow later edits.
func Load(path string) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("position book requires path")
	}
	schema, err := compileSchema(bookSchema)
	if err != nil {
		return nil, fmt.Errorf("compile book schema: %w", err)
	}
	b := &Book{path: path, schema: schema}
	if _, _, err := b.reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Watch reloads the book on every write. A file that fails to parse or
// validate is logged and the previous snapshot stays in force.
func (b *Book) Watch() error {
	v := viper.New()
	v.SetConfigFile(b.path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("watch position book: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		prev, next, err := b.reload()
		if err != nil {
			logger.Errorf("position book reload failed (%s): %v", evt.Name, err)
			return
		}
		b.notify(prev, next)
	})
	v.WatchConfig()
	b.mu.Lock()
	b.v = v
	b.mu.Unlock()
	return nil
}

func (b *Book) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneSnapshot(b.snapshot)
}

func (b *Book) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

func (b *Book) reload() (Snapshot, Snapshot, error) {
	cfg, err := b.read()
	if err != nil {
		return Snapshot{}, Snapshot{}, err
	}
	entries := make(map[string]Entry, len(cfg.Positions))
	for name, e := range cfg.Positions {
		sym := position.NormalizeSymbol(name)
		if sym == "" {
			return Snapshot{}, Snapshot{}, fmt.Errorf("position book: empty symbol")
		}
		if _, dup := entries[sym]; dup {
			return Snapshot{}, Snapshot{}, fmt.Errorf("position book: duplicate symbol %s", sym)
		}
		e.Symbol = sym
		if _, err := position.New(e.Params()); err != nil {
			return Snapshot{}, Snapshot{}, fmt.Errorf("position book %s: %w", sym, err)
		}
		entries[sym] = e
	}
	b.mu.Lock()
	prev := cloneSnapshot(b.snapshot)
	b.snapshot = Snapshot{
		Version:  b.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Entries:  entries,
	}
	next := cloneSnapshot(b.snapshot)
	b.mu.Unlock()
	logger.Infof("position book loaded %d symbols from %s", len(entries), filepath.Base(b.path))
	return prev, next, nil
}

func (b *Book) read() (fileConfig, error) {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read position book: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fileConfig{}, fmt.Errorf("parse position book: %w", err)
	}
	if err := b.validate(doc); err != nil {
		return fileConfig{}, fmt.Errorf("position book schema: %w", err)
	}
	var cfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse position book: %w", err)
	}
	return cfg, nil
}

// validate runs the schema over the YAML document re-read as JSON, so
// numbers reach the validator the way it expects them.
func (b *Book) validate(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var val any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&val); err != nil {
		return err
	}
	return b.schema.Validate(val)
}

func (b *Book) notify(prev, next Snapshot) {
	b.mu.RLock()
	listeners := append([]ChangeListener(nil), b.listeners...)
	b.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("position book listener")
			cb(prev, next)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Entries:  make(map[string]Entry, len(src.Entries)),
	}
	for sym, e := range src.Entries {
		dst.Entries[sym] = e
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func compileSchema(src string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("book.json", strings.NewReader(src)); err != nil {
		return nil, err
	}
	return compiler.Compile("book.json")
}
