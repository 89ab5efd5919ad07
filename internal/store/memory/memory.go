// Package memory is an in-process simulator of a capacity-metered partitioned store.
//
// Records are kept in a go-memdb table. Each record is routed to a physical
// partition by hashing either its synthetic partition key or its logical key
// (PartitionBy), and every partition owns a token-bucket budget of capacity
// units per second. Writes that do not fit the budget are rejected as throttled.
//
// Synthetic routing spreads every logical key across all partitions. Logical
// routing sends all records of a key to one partition, so a skewed key
// distribution shows up as throttling on the hot partition only.
package memory

import (
	"context"
	"math/rand"
	"sync"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"elastic-load/internal/loaderrors"
	"elastic-load/internal/logger"
	"elastic-load/internal/record"
	"elastic-load/internal/store"
)

const (
	recordsTable    = "records"
	idIndex         = "id"          // lookup by record id
	logicalKeyIndex = "logical_key" // lookup by logical (skewed) key
)

// Config はシミュレータの設定
type Config struct {
	Partitions    int     `mapstructure:"partitions" yaml:"partitions" json:"partitions" validate:"gte=1"`
	MaxThroughput float64 `mapstructure:"max_throughput" yaml:"max_throughput" json:"max_throughput" validate:"gte=0"` // 全パーティション合計の毎秒キャパシティ、0で無制限
	FailureRate   float64 `mapstructure:"failure_rate" yaml:"failure_rate" json:"failure_rate" validate:"gte=0,lte=1"`
	Seed          int64   `mapstructure:"seed" yaml:"seed" json:"seed"`

	// PartitionBy は振り分けキー（synthetic または logical）
	PartitionBy store.PartitionBy `mapstructure:"partition_by" yaml:"partition_by" json:"partition_by" validate:"omitempty,oneof=synthetic logical"`

	store.CostModel `mapstructure:",squash" yaml:",inline"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Partitions:    10,
		MaxThroughput: 10000,
		PartitionBy:   store.PartitionBySynthetic,
		CostModel:     store.DefaultCostModel(),
	}
}

// Document はテーブルに保存される1件
type Document struct {
	ID           string
	LogicalKey   string
	PartitionKey string
	Partition    string
	Body         []byte
}

var _ store.Store = (*Store)(nil)

// Store はインメモリのシミュレータ
type Store struct {
	config     Config
	clock      clock.PassiveClock
	db         *memdb.MemDB
	partitions []*Partition

	mu  sync.Mutex // rng
	rng *rand.Rand
}

// New は新しいシミュレータを作成する
func New(config Config, clk clock.PassiveClock) (*Store, error) {
	if config.Partitions < 1 {
		return nil, &loaderrors.ErrConfiguration{
			Name:    "store.memory.partitions",
			Value:   config.Partitions,
			Message: "at least one partition is required",
		}
	}
	if config.FailureRate < 0 || config.FailureRate > 1 {
		return nil, &loaderrors.ErrConfiguration{
			Name:    "store.memory.failure_rate",
			Value:   config.FailureRate,
			Message: "must be between 0 and 1",
		}
	}
	partitionBy, err := store.ParsePartitionBy(string(config.PartitionBy))
	if err != nil {
		return nil, &loaderrors.ErrConfiguration{
			Name:    "store.memory.partition_by",
			Value:   config.PartitionBy,
			Message: "expected synthetic or logical",
		}
	}
	config.PartitionBy = partitionBy
	if clk == nil {
		clk = clock.RealClock{}
	}

	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, errors.WithStack(err)
	}

	budget := config.MaxThroughput / float64(config.Partitions)
	partitions := make([]*Partition, config.Partitions)
	for i := range partitions {
		partitions[i] = newPartition(i, budget)
	}

	return &Store{
		config:     config,
		clock:      clk,
		db:         db,
		partitions: partitions,
		rng:        rand.New(rand.NewSource(config.Seed)),
	}, nil
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			recordsTable: {
				Name: recordsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					logicalKeyIndex: {
						Name:         logicalKeyIndex,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "LogicalKey"},
					},
				},
			},
		},
	}
}

func (s *Store) Name() string { return "memory" }

// Setup は何もしない（テーブルは New で作成済み）
func (s *Store) Setup(context.Context) error {
	logger.Info("", "Memory store ready (%d partitions by %s key, %.0f units/s)",
		len(s.partitions), s.config.PartitionBy, s.config.MaxThroughput)
	return nil
}

// Teardown は全ドキュメントを削除する
func (s *Store) Teardown(context.Context) error {
	txn := s.db.Txn(true)
	deleted, err := txn.DeleteAll(recordsTable, idIndex)
	if err != nil {
		txn.Abort()
		return errors.WithStack(err)
	}
	txn.Commit()
	logger.Info("", "Memory store cleaned up (%d documents removed)", deleted)
	return nil
}

func (s *Store) Close() error { return nil }

// Write はパーティション予算の範囲でドキュメントを保存する
func (s *Store) Write(ctx context.Context, rec record.Record) store.Result {
	if err := ctx.Err(); err != nil {
		return store.Failed(0, err)
	}

	cost := s.config.WriteCost(rec.Size())
	if s.injectFailure() {
		return store.Failed(cost, errors.Errorf("simulated failure writing %s", rec.ID))
	}

	p := s.partitions[partitionIndex(s.config.PartitionBy.Key(rec), len(s.partitions))]
	if !p.admit(s.clock.Now(), cost) {
		return store.Throttled(s.config.Rejection(), "request rate is large on "+p.ID())
	}

	txn := s.db.Txn(true)
	err := txn.Insert(recordsTable, &Document{
		ID:           rec.ID,
		LogicalKey:   rec.LogicalKey,
		PartitionKey: rec.PartitionKey,
		Partition:    p.ID(),
		Body:         rec.Body,
	})
	if err != nil {
		txn.Abort()
		return store.Failed(cost, err)
	}
	txn.Commit()
	return store.Succeeded(cost)
}

func (s *Store) injectFailure() bool {
	if s.config.FailureRate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.config.FailureRate
}

// Count は保存済みのドキュメント数を返す
func (s *Store) Count() (int, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get(recordsTable, idIndex)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n, nil
}

// CountByKey は論理キーごとのドキュメント数を返す
func (s *Store) CountByKey(logicalKey string) (int, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get(recordsTable, logicalKeyIndex, logicalKey)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n, nil
}

// Get はIDでドキュメントを取得する
func (s *Store) Get(id string) (*Document, bool) {
	txn := s.db.Txn(false)
	obj, err := txn.First(recordsTable, idIndex, id)
	if err != nil || obj == nil {
		return nil, false
	}
	return obj.(*Document), true
}

// PartitionStats は全パーティションの統計を返す
func (s *Store) PartitionStats() []PartitionStats {
	out := make([]PartitionStats, len(s.partitions))
	for i, p := range s.partitions {
		out[i] = p.Stats()
	}
	return out
}
