// Package redis writes workload records into Redis hashes.
//
// Every record becomes a hash under <prefix>:<partition key>, and the key is
// added to the set <prefix>:index so teardown can find what the run created.
// Redis has no notion of provisioned throughput, so an optional client-side
// meter can be configured to reject writes beyond a capacity budget.
package redis

import (
	"context"
	"math"
	"strings"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	xrate "golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"elastic-load/internal/loaderrors"
	"elastic-load/internal/logger"
	"elastic-load/internal/record"
	"elastic-load/internal/store"
)

// Config はRedisバックエンドの設定
type Config struct {
	Addr          string  `mapstructure:"addr" yaml:"addr" json:"addr" validate:"required"`
	Password      string  `mapstructure:"password" yaml:"password,omitempty" json:"-"`
	DB            int     `mapstructure:"db" yaml:"db" json:"db" validate:"gte=0"`
	Prefix        string  `mapstructure:"prefix" yaml:"prefix" json:"prefix" validate:"required"`
	MaxThroughput float64 `mapstructure:"max_throughput" yaml:"max_throughput" json:"max_throughput" validate:"gte=0"` // 0で無制限

	store.CostModel `mapstructure:",squash" yaml:",inline"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Addr:      "localhost:6379",
		Prefix:    "elastic-load",
		CostModel: store.DefaultCostModel(),
	}
}

// throttleReplies はキャパシティ不足を示すエラーリプライの接頭辞
var throttleReplies = []string{"OOM", "BUSY", "LOADING"}

var _ store.Store = (*Store)(nil)

// Store はRedisへの書き込みを行う
type Store struct {
	config Config
	client *redis.Client
	clock  clock.PassiveClock
	meter  *xrate.Limiter
}

// New は新しいRedisストアを作成する（接続確認は Setup で行う）
func New(config Config, clk clock.PassiveClock) (*Store, error) {
	if config.Addr == "" {
		return nil, &loaderrors.ErrConfiguration{Name: "store.redis.addr", Message: "address is required"}
	}
	if config.Prefix == "" {
		config.Prefix = DefaultConfig().Prefix
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	s := &Store{
		config: config,
		clock:  clk,
		client: redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		}),
	}
	if config.MaxThroughput > 0 {
		s.meter = xrate.NewLimiter(xrate.Limit(config.MaxThroughput), int(math.Ceil(config.MaxThroughput)))
	}
	return s, nil
}

func (s *Store) Name() string { return "redis" }

func (s *Store) indexKey() string {
	return s.config.Prefix + ":index"
}

func (s *Store) recordKey(rec record.Record) string {
	return s.config.Prefix + ":" + rec.PartitionKey
}

// Setup はサーバーへの疎通を確認する
func (s *Store) Setup(ctx context.Context) error {
	if err := s.client.WithContext(ctx).Ping().Err(); err != nil {
		return &loaderrors.ErrSetupFailure{Resource: "redis " + s.config.Addr, Err: err}
	}
	logger.Info("", "Connected to redis at %s (prefix %q)", s.config.Addr, s.config.Prefix)
	return nil
}

// Teardown はこの実行で作成したキーを全て削除する
func (s *Store) Teardown(ctx context.Context) error {
	client := s.client.WithContext(ctx)
	keys, err := client.SMembers(s.indexKey()).Result()
	if err != nil {
		return errors.Wrap(err, "listing written keys")
	}
	keys = append(keys, s.indexKey())
	deleted, err := client.Del(keys...).Result()
	if err != nil {
		return errors.Wrap(err, "deleting written keys")
	}
	logger.Info("", "Redis cleaned up (%d keys removed)", deleted)
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Write はレコードをハッシュとして保存し、インデックスに登録する
func (s *Store) Write(ctx context.Context, rec record.Record) store.Result {
	cost := s.config.WriteCost(rec.Size())
	if s.meter != nil && !s.meter.AllowN(s.clock.Now(), int(math.Ceil(cost))) {
		return store.Throttled(s.config.Rejection(), "redis capacity budget exhausted")
	}

	key := s.recordKey(rec)
	pipe := s.client.WithContext(ctx).TxPipeline()
	pipe.HMSet(key, map[string]interface{}{
		"id":            rec.ID,
		"logical_key":   rec.LogicalKey,
		"partition_key": rec.PartitionKey,
		"body":          rec.Body,
	})
	pipe.SAdd(s.indexKey(), key)
	if _, err := pipe.Exec(); err != nil {
		if IsThrottle(err) {
			return store.Throttled(s.config.Rejection(), err.Error())
		}
		return store.Failed(cost, err)
	}
	return store.Succeeded(cost)
}

// IsThrottle はキャパシティ不足を示すリプライかを判定する
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, prefix := range throttleReplies {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
