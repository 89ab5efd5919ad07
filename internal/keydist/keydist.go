// Package keydist implements weighted partition-key distributions used to
// concentrate write load on a small subset of keys (hot partitions).
package keydist

import (
	"math/rand"
	"sort"
	"strconv"

	"elastic-load/internal/loaderrors"
)

// Entry はキー候補とその相対的な重み
type Entry struct {
	Key    string  `mapstructure:"key" yaml:"key" json:"key"`
	Weight float64 `mapstructure:"weight" yaml:"weight" json:"weight"`
}

// Tier は同じ重みを持つ連続したキーの集まり（hot / warm / cold）
type Tier struct {
	Count  int     `mapstructure:"count" yaml:"count" json:"count"`
	Weight float64 `mapstructure:"weight" yaml:"weight" json:"weight"`
}

// Distribution は累積重みテーブルによる重み付きサンプラー
//
// 生成後は読み取り専用のため並行利用しても安全（乱数源は呼び出し側が持つ）
type Distribution struct {
	keys       []string
	weights    []float64
	cumulative []float64
	total      float64
}

// New は重み付き分布を作成する
func New(entries []Entry) (*Distribution, error) {
	if len(entries) == 0 {
		return nil, &loaderrors.ErrConfiguration{
			Name:    "distribution.keys",
			Message: "at least one partition key is required",
		}
	}

	d := &Distribution{
		keys:       make([]string, len(entries)),
		weights:    make([]float64, len(entries)),
		cumulative: make([]float64, len(entries)),
	}
	for i, e := range entries {
		if e.Weight < 0 {
			return nil, &loaderrors.ErrConfiguration{
				Name:    "distribution.keys[" + strconv.Itoa(i) + "].weight",
				Value:   e.Weight,
				Message: "weights must be non-negative",
			}
		}
		d.total += e.Weight
		d.keys[i] = e.Key
		d.weights[i] = e.Weight
		d.cumulative[i] = d.total
	}
	if d.total <= 0 {
		return nil, &loaderrors.ErrConfiguration{
			Name:    "distribution.keys",
			Value:   d.total,
			Message: "total weight must be greater than zero",
		}
	}
	return d, nil
}

// Uniform は n 個のキー（"1"〜"n"）を均等な重みで持つ分布を返す
func Uniform(n int) (*Distribution, error) {
	return New(Tiers([]Tier{{Count: n, Weight: 1}}))
}

// Tiers は階層定義をキー "1"〜"N" のエントリ列に展開する
func Tiers(tiers []Tier) []Entry {
	var entries []Entry
	next := 1
	for _, t := range tiers {
		for i := 0; i < t.Count; i++ {
			entries = append(entries, Entry{Key: strconv.Itoa(next), Weight: t.Weight})
			next++
		}
	}
	return entries
}

// Sample は重みに比例してキーを1つ選ぶ
func (d *Distribution) Sample(r *rand.Rand) string {
	return d.keys[d.SampleIndex(r)]
}

// SampleIndex は選ばれたキーのインデックスを返す
func (d *Distribution) SampleIndex(r *rand.Rand) int {
	draw := r.Float64() * d.total
	// draw より大きい最初の累積重み
	i := sort.Search(len(d.cumulative), func(i int) bool {
		return d.cumulative[i] > draw
	})
	if i >= len(d.cumulative) {
		// 浮動小数点の丸めで末尾を超えた場合
		i = len(d.cumulative) - 1
	}
	return i
}

// Keys はキー一覧を返す
func (d *Distribution) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Len はキー数を返す
func (d *Distribution) Len() int {
	return len(d.keys)
}

// TotalWeight は重みの合計を返す
func (d *Distribution) TotalWeight() float64 {
	return d.total
}

// Probability は正規化された選択確率を返す（存在しないキーは0）
func (d *Distribution) Probability(key string) float64 {
	var w float64
	for i, k := range d.keys {
		if k == key {
			w += d.weights[i]
		}
	}
	return w / d.total
}

// Hottest は最も重いキーを返す
func (d *Distribution) Hottest() string {
	best := 0
	for i, w := range d.weights {
		if w > d.weights[best] {
			best = i
		}
	}
	return d.keys[best]
}
