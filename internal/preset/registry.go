// Package preset 管理命名的回测参数预设（YAML 文件，修改后自动重载）。
package preset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"pairlab/internal/logger"
	"pairlab/internal/types"
)

var log = logger.Component("preset")

// Preset 是一组回测参数；Params 的键与回测请求的 JSON 字段一致。
type Preset struct {
	Name        string                 `yaml:"-" json:"name"`
	Description string                 `yaml:"description" json:"description"`
	Params      map[string]interface{} `yaml:"params" json:"params"`

	raw []byte
}

type fileConfig struct {
	Presets map[string]Preset `yaml:"presets"`
}

// Snapshot 是某次加载的只读视图。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Presets  map[string]Preset
}

type Registry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewRegistry 读取预设文件；watch=true 时文件变更会触发重载，重载失败保留旧版本。
func NewRegistry(path string, watch bool) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("preset registry requires path")
	}
	schema, err := compileSchema(paramSchema)
	if err != nil {
		return nil, fmt.Errorf("compile preset schema failed: %w", err)
	}
	r := &Registry{path: path, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	if watch {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read preset file failed: %w", err)
		}
		v.OnConfigChange(func(evt fsnotify.Event) {
			if err := r.reload(); err != nil {
				log.Errorf("reload failed (%s): %v", evt.Name, err)
			}
		})
		v.WatchConfig()
		r.v = v
	}
	return r, nil
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{Version: r.snapshot.Version, LoadedAt: r.snapshot.LoadedAt, Presets: make(map[string]Preset, len(r.snapshot.Presets))}
	for k, p := range r.snapshot.Presets {
		out.Presets[k] = p
	}
	return out
}

func (r *Registry) Get(name string) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Presets[normalizeName(name)]
	return p, ok
}

// List 按名称排序。
func (r *Registry) List() []Preset {
	snap := r.Snapshot()
	out := make([]Preset, 0, len(snap.Presets))
	for _, p := range snap.Presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Apply 把预设参数填入 cfg 中仍为零值的字段，请求里显式给出的值优先。
func (r *Registry) Apply(name string, cfg *types.BacktestConfig) error {
	p, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: unknown preset %q", types.ErrInvalidConfig, name)
	}
	doc := gjson.ParseBytes(p.raw)
	if cfg.LookbackDays == 0 {
		if v := doc.Get("lookback_days"); v.Exists() {
			cfg.LookbackDays = int(v.Int())
		}
	}
	fillFloat(doc, "entry_threshold", &cfg.EntryThreshold)
	fillFloat(doc, "initial_capital", &cfg.InitialCapital)
	fillFloat(doc, "position_size_pct", &cfg.PositionSizePct)
	fillFloat(doc, "transaction_cost_pct", &cfg.TransactionCostPct)
	if v := doc.Get("stop_loss"); v.Exists() && cfg.StopLoss.Type == "" {
		cfg.StopLoss = types.StopLoss{Type: types.StopLossType(v.Get("type").String()), Value: v.Get("value").Float()}
	}
	if v := doc.Get("take_profit"); v.Exists() && cfg.TakeProfit.Type == "" {
		cfg.TakeProfit = types.TakeProfit{Type: types.TakeProfitType(v.Get("type").String()), Value: v.Get("value").Float()}
	}
	rb := cfg.Rebalancing
	if v := doc.Get("rebalancing"); v.Exists() && !rb.Enabled && rb.FrequencyDays == 0 && rb.DriftThreshold == 0 {
		cfg.Rebalancing = types.Rebalancing{
			Enabled:        v.Get("enabled").Bool(),
			FrequencyDays:  int(v.Get("frequency_days").Int()),
			DriftThreshold: v.Get("drift_threshold").Float(),
		}
	}
	return nil
}

func fillFloat(doc gjson.Result, path string, dst *float64) {
	if *dst != 0 {
		return
	}
	if v := doc.Get(path); v.Exists() {
		*dst = v.Float()
	}
}

func (r *Registry) reload() error {
	cfg, err := readPresetFile(r.path)
	if err != nil {
		return err
	}
	presets := make(map[string]Preset, len(cfg.Presets))
	for key, p := range cfg.Presets {
		name := normalizeName(key)
		if name == "" {
			return fmt.Errorf("preset name cannot be empty")
		}
		if _, dup := presets[name]; dup {
			return fmt.Errorf("duplicate preset %q", name)
		}
		p.Name = name
		p.Description = strings.TrimSpace(p.Description)
		if p.Params == nil {
			p.Params = map[string]interface{}{}
		}
		raw, err := json.Marshal(p.Params)
		if err != nil {
			return fmt.Errorf("preset %s: %w", name, err)
		}
		if err := r.validate(raw); err != nil {
			return fmt.Errorf("preset %s: %w", name, err)
		}
		p.raw = raw
		presets[name] = p
	}
	r.mu.Lock()
	r.snapshot = Snapshot{Version: r.snapshot.Version + 1, LoadedAt: time.Now(), Presets: presets}
	r.mu.Unlock()
	log.Infof("loaded %d presets from %s", len(presets), filepath.Base(r.path))
	return nil
}

func (r *Registry) validate(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return r.schema.Validate(doc)
}

func readPresetFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read preset file failed: %w", err)
	}
	var cfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, fmt.Errorf("parse preset file failed: %w", err)
	}
	return cfg, nil
}

func compileSchema(src string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("preset.json", strings.NewReader(src)); err != nil {
		return nil, err
	}
	return compiler.Compile("preset.json")
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
