// Package record produces the synthetic documents written by the workload.
package record

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record は書き込み対象の1ドキュメント
//
// 生成後は不変。生成したワーカーがストアに渡すまで所有する
type Record struct {
	ID           string // 一意なID
	LogicalKey   string // 分布から選ばれた論理キー（例: StoreId）
	PartitionKey string // 論理キーとIDを組み合わせた合成キー
	Payload      any    // *Transaction もしくはテンプレート由来の map
	Body         []byte // Payload のJSON表現
}

// Size はドキュメントのバイト数を返す
func (r Record) Size() int {
	return len(r.Body)
}

// SyntheticKeyField は合成パーティションキーを保持するドキュメントのフィールド名
const SyntheticKeyField = "SyntheticKey"

// SyntheticKey は論理キーとIDから合成パーティションキーを作る
func SyntheticKey(logicalKey, id string) string {
	return fmt.Sprintf("%s;%s", logicalKey, id)
}

// Transaction は決済トランザクションのドキュメント
type Transaction struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"TransactionId"`
	StoreID       string    `json:"StoreId"`
	SyntheticKey  string    `json:"SyntheticKey"`
	NumItems      int       `json:"NumItems"`
	Amount        float64   `json:"Amount"`
	Currency      string    `json:"Currency"`
	UserID        string    `json:"UserId"`
	Country       string    `json:"Country"`
	Address       string    `json:"Address"`
	Date          string    `json:"Date"`
	Timestamp     time.Time `json:"Timestamp"`
}

func newRecord(id, logicalKey string, payload any) (Record, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("encoding record %s: %w", id, err)
	}
	return Record{
		ID:           id,
		LogicalKey:   logicalKey,
		PartitionKey: SyntheticKey(logicalKey, id),
		Payload:      payload,
		Body:         body,
	}, nil
}
