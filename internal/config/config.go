package config

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/clock"

	"elastic-load/internal/keydist"
	"elastic-load/internal/loaderrors"
	"elastic-load/internal/rate"
	"elastic-load/internal/record"
	"elastic-load/internal/scenario"
	"elastic-load/internal/store"
	"elastic-load/internal/store/memory"
	"elastic-load/internal/store/postgres"
	"elastic-load/internal/store/redis"
)

// FileConfig は設定ファイル・環境変数・フラグをまとめた設定
type FileConfig struct {
	Preset       string             `mapstructure:"preset" yaml:"preset,omitempty" json:"preset,omitempty"`
	Name         string             `mapstructure:"name" yaml:"name" json:"name"`
	Description  string             `mapstructure:"description" yaml:"description" json:"description"`
	Workload     WorkloadConfig     `mapstructure:"workload" yaml:"workload" json:"workload"`
	Rate         RateConfig         `mapstructure:"rate" yaml:"rate" json:"rate"`
	Distribution DistributionConfig `mapstructure:"distribution" yaml:"distribution" json:"distribution"`
	Throttle     ThrottleConfig     `mapstructure:"throttle" yaml:"throttle" json:"throttle"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store" json:"store"`
	Report       ReportConfig       `mapstructure:"report" yaml:"report" json:"report"`
	API          APIConfig          `mapstructure:"api" yaml:"api" json:"api"`
	Log          LogConfig          `mapstructure:"log" yaml:"log" json:"log"`
}

// WorkloadConfig はワークロード設定
type WorkloadConfig struct {
	TotalRecords        int         `mapstructure:"total_records" yaml:"total_records" json:"total_records" validate:"gte=0"`
	Workers             WorkerCount `mapstructure:"workers" yaml:"workers" json:"workers" validate:"gte=0"`
	MaxThroughput       float64     `mapstructure:"max_throughput" yaml:"max_throughput" json:"max_throughput" validate:"gte=0"`
	PerWorkerThroughput float64     `mapstructure:"per_worker_throughput" yaml:"per_worker_throughput" json:"per_worker_throughput" validate:"gt=0"`
	MinWorkers          int         `mapstructure:"min_workers" yaml:"min_workers" json:"min_workers" validate:"gte=0"`
	Kind                string      `mapstructure:"kind" yaml:"kind" json:"kind" validate:"oneof=transactions static template"`
	TemplateFile        string      `mapstructure:"template_file" yaml:"template_file,omitempty" json:"template_file,omitempty" validate:"required_if=Kind template"`
	KeyField            string      `mapstructure:"key_field" yaml:"key_field" json:"key_field" validate:"required"`
	Seed                int64       `mapstructure:"seed" yaml:"seed" json:"seed"`
}

// RateConfig は遅延切り替えの設定
type RateConfig struct {
	Enabled        bool            `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	ChangeInterval time.Duration   `mapstructure:"change_interval" yaml:"change_interval" json:"change_interval" validate:"gte=0"`
	DelayLevels    []time.Duration `mapstructure:"delay_levels" yaml:"delay_levels" json:"delay_levels" validate:"dive,gte=0"`
	InitialDelay   time.Duration   `mapstructure:"initial_delay" yaml:"initial_delay" json:"initial_delay" validate:"gte=0"`
}

// DistributionConfig はパーティションキー分布（keys があれば tiers より優先）
type DistributionConfig struct {
	Keys  []keydist.Entry `mapstructure:"keys" yaml:"keys,omitempty" json:"keys,omitempty" validate:"dive"`
	Tiers []keydist.Tier  `mapstructure:"tiers" yaml:"tiers,omitempty" json:"tiers,omitempty" validate:"dive"`
}

// ThrottleConfig は CapacityExceeded の扱い
type ThrottleConfig struct {
	Policy         string        `mapstructure:"policy" yaml:"policy" json:"policy" validate:"oneof=record retry"`
	MaxAttempts    uint          `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff" json:"initial_backoff" validate:"gte=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff" json:"max_backoff" validate:"gte=0"`
}

// StoreConfig は書き込み先の設定
type StoreConfig struct {
	Backend         string          `mapstructure:"backend" yaml:"backend" json:"backend" validate:"oneof=memory redis postgres"`
	Regions         int             `mapstructure:"regions" yaml:"regions" json:"regions" validate:"gte=1"`
	CleanupOnFinish bool            `mapstructure:"cleanup_on_finish" yaml:"cleanup_on_finish" json:"cleanup_on_finish"`
	Memory          memory.Config   `mapstructure:"memory" yaml:"memory" json:"memory"`
	Redis           redis.Config    `mapstructure:"redis" yaml:"redis" json:"redis"`
	Postgres        postgres.Config `mapstructure:"postgres" yaml:"postgres" json:"postgres"`
}

// ReportConfig は進捗出力の設定
type ReportConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval" validate:"gte=0"`
}

// APIConfig はライブAPIの設定（addr が空なら起動しない）
type APIConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" json:"format" validate:"oneof=text json"`
}

// FromScenario はシナリオ設定を FileConfig に変換する（デフォルト値の元になる）
func FromScenario(sc scenario.Config) FileConfig {
	levels := make([]time.Duration, len(sc.Rate.Levels))
	copy(levels, sc.Rate.Levels)
	kind := string(sc.Kind)
	if kind == "" {
		kind = string(record.KindTransactions)
	}
	mem := memory.DefaultConfig()
	if sc.PartitionBy != "" {
		mem.PartitionBy = sc.PartitionBy
	}
	return FileConfig{
		Name:        sc.Name,
		Description: sc.Description,
		Workload: WorkloadConfig{
			TotalRecords:        sc.TotalRecords,
			Workers:             WorkerCount(sc.Workers),
			MaxThroughput:       sc.MaxThroughput,
			PerWorkerThroughput: sc.PerWorkerThroughput,
			MinWorkers:          sc.MinWorkers,
			Kind:                kind,
			KeyField:            sc.KeyField,
			Seed:                sc.Seed,
		},
		Rate: RateConfig{
			Enabled:        sc.Rate.Enabled,
			ChangeInterval: sc.Rate.Interval,
			DelayLevels:    levels,
			InitialDelay:   sc.Rate.InitialDelay,
		},
		Distribution: DistributionConfig{
			Keys:  sc.Keys,
			Tiers: sc.Tiers,
		},
		Throttle: ThrottleConfig{
			Policy:         string(sc.ThrottlePolicy),
			MaxAttempts:    sc.Retry.MaxAttempts,
			InitialBackoff: sc.Retry.InitialBackoff,
			MaxBackoff:     sc.Retry.MaxBackoff,
		},
		Store: StoreConfig{
			Backend:         "memory",
			Regions:         sc.Regions,
			CleanupOnFinish: sc.CleanupOnFinish,
			Memory:          mem,
			Redis:           redis.DefaultConfig(),
			Postgres:        postgres.DefaultConfig(),
		},
		Report: ReportConfig{Interval: sc.ReportInterval},
		API:    APIConfig{Addr: sc.APIAddr},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// ToScenarioConfig はFileConfigをscenario.Configに変換する
func (f *FileConfig) ToScenarioConfig() (scenario.Config, error) {
	kind, err := record.ParseKind(f.Workload.Kind)
	if err != nil {
		return scenario.Config{}, err
	}
	policy, err := scenario.ParseThrottlePolicy(f.Throttle.Policy)
	if err != nil {
		return scenario.Config{}, err
	}

	config := scenario.Config{
		Name:                f.Name,
		Description:         f.Description,
		TotalRecords:        f.Workload.TotalRecords,
		Workers:             int(f.Workload.Workers),
		MaxThroughput:       f.Workload.MaxThroughput,
		PerWorkerThroughput: f.Workload.PerWorkerThroughput,
		MinWorkers:          f.Workload.MinWorkers,
		Kind:                kind,
		KeyField:            f.Workload.KeyField,
		Seed:                f.Workload.Seed,
		Keys:                f.Distribution.Keys,
		Tiers:               f.Distribution.Tiers,
		Rate: rate.Config{
			Enabled:      f.Rate.Enabled,
			Interval:     f.Rate.ChangeInterval,
			Levels:       f.Rate.DelayLevels,
			InitialDelay: f.Rate.InitialDelay,
		},
		ThrottlePolicy: policy,
		Retry: store.RetryConfig{
			MaxAttempts:    f.Throttle.MaxAttempts,
			InitialBackoff: f.Throttle.InitialBackoff,
			MaxBackoff:     f.Throttle.MaxBackoff,
		},
		Regions:         f.Store.Regions,
		CleanupOnFinish: f.Store.CleanupOnFinish,
		PartitionBy:     f.Store.Memory.PartitionBy,
		ReportInterval:  f.Report.Interval,
		APIAddr:         f.API.Addr,
	}

	if kind == record.KindTemplate {
		doc, err := record.LoadTemplate(f.Workload.TemplateFile)
		if err != nil {
			return config, &loaderrors.ErrConfiguration{
				Name:    "workload.template_file",
				Value:   f.Workload.TemplateFile,
				Message: err.Error(),
			}
		}
		config.Template = doc
	}
	return config, nil
}

// OpenStore は設定されたバックエンドを作成する
func (s StoreConfig) OpenStore(ctx context.Context, clk clock.PassiveClock) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch s.Backend {
	case "", "memory":
		st, err = memory.New(s.Memory, clk)
	case "redis":
		st, err = redis.New(s.Redis, clk)
	case "postgres":
		st, err = postgres.New(ctx, s.Postgres)
	default:
		return nil, &loaderrors.ErrConfiguration{
			Name:    "store.backend",
			Value:   s.Backend,
			Message: "expected memory, redis or postgres",
		}
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// YAML は有効な設定をYAMLで返す
func (f *FileConfig) YAML() ([]byte, error) {
	out, err := yaml.Marshal(f)
	return out, errors.Wrap(err, "encoding config as yaml")
}
