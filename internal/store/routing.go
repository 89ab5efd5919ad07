package store

import (
	"elastic-load/internal/loaderrors"
	"elastic-load/internal/record"
)

// PartitionBy はレコードを物理パーティションへ振り分けるキーの種類
type PartitionBy string

const (
	// PartitionBySynthetic は合成キー（"<論理キー>;<ID>"）で振り分ける。負荷は全パーティションに分散する
	PartitionBySynthetic PartitionBy = "synthetic"
	// PartitionByLogical は論理キーで振り分ける。偏った分布はそのままホットパーティションになる
	PartitionByLogical PartitionBy = "logical"
)

// ParsePartitionBy は文字列を PartitionBy に変換する（空文字列は synthetic）
func ParsePartitionBy(s string) (PartitionBy, error) {
	switch PartitionBy(s) {
	case "", PartitionBySynthetic:
		return PartitionBySynthetic, nil
	case PartitionByLogical:
		return PartitionByLogical, nil
	}
	return "", &loaderrors.ErrConfiguration{
		Name:    "partition_by",
		Value:   s,
		Message: "expected synthetic or logical",
	}
}

// Key は rec の振り分けに使うキーを返す
func (p PartitionBy) Key(rec record.Record) string {
	if p == PartitionByLogical {
		return rec.LogicalKey
	}
	return rec.PartitionKey
}
