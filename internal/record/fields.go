package record

import (
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// 各フィールドの生成規則
type (
	IntRule    func(f *gofakeit.Faker) int
	FloatRule  func(f *gofakeit.Faker) float64
	StringRule func(f *gofakeit.Faker) string
	TimeRule   func(f *gofakeit.Faker, now time.Time) time.Time
)

// TransactionFactory は生成規則から Transaction を組み立てる
//
// ID・StoreID・SyntheticKey・Date はキーとタイムスタンプから導出される
type TransactionFactory struct {
	numItems  IntRule
	amount    FloatRule
	currency  StringRule
	userID    StringRule
	country   StringRule
	address   StringRule
	timestamp TimeRule
}

// NewTransactionFactory は全フィールドの生成規則を受け取ってファクトリを作成する
func NewTransactionFactory(
	numItems IntRule,
	amount FloatRule,
	currency StringRule,
	userID StringRule,
	country StringRule,
	address StringRule,
	timestamp TimeRule,
) *TransactionFactory {
	return &TransactionFactory{
		numItems:  numItems,
		amount:    amount,
		currency:  currency,
		userID:    userID,
		country:   country,
		address:   address,
		timestamp: timestamp,
	}
}

// RandomTransactionFactory は現実的な乱数値を生成するファクトリを返す
func RandomTransactionFactory() *TransactionFactory {
	return NewTransactionFactory(
		func(f *gofakeit.Faker) int { return f.Number(1, 50) },
		func(f *gofakeit.Faker) float64 { return math.Round(f.Price(1, 1000)*100) / 100 },
		func(f *gofakeit.Faker) string { return f.CurrencyShort() },
		func(f *gofakeit.Faker) string { return f.Username() },
		func(f *gofakeit.Faker) string { return f.Country() },
		func(f *gofakeit.Faker) string { return f.Street() },
		Now,
	)
}

// StaticTransactionFactory は全て固定値のファクトリを返す（単一ホットパーティション用）
func StaticTransactionFactory() *TransactionFactory {
	return NewTransactionFactory(
		func(*gofakeit.Faker) int { return 5 },
		func(*gofakeit.Faker) float64 { return 10 },
		Fixed("USD"),
		Fixed("loaduser"),
		Fixed("USA"),
		Fixed("1234 Main Street"),
		Now,
	)
}

// Fixed は常に s を返す規則
func Fixed(s string) StringRule {
	return func(*gofakeit.Faker) string { return s }
}

// Now は生成時刻をそのまま使う規則
func Now(_ *gofakeit.Faker, now time.Time) time.Time {
	return now
}

// Build は1件の Transaction を生成する
func (tf *TransactionFactory) Build(f *gofakeit.Faker, id, storeID string, now time.Time) *Transaction {
	ts := tf.timestamp(f, now)
	return &Transaction{
		ID:            id,
		TransactionID: id,
		StoreID:       storeID,
		SyntheticKey:  SyntheticKey(storeID, id),
		NumItems:      tf.numItems(f),
		Amount:        tf.amount(f),
		Currency:      tf.currency(f),
		UserID:        tf.userID(f),
		Country:       tf.country(f),
		Address:       tf.address(f),
		Date:          ts.Format("2006-01-02"),
		Timestamp:     ts,
	}
}
