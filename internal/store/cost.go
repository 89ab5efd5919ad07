package store

import "math"

// DefaultCostPerKB は1KBあたりの書き込みコスト
const DefaultCostPerKB = 5.7

// CostModel はドキュメントサイズから書き込みコストを見積もる
type CostModel struct {
	PerKB         float64 `mapstructure:"cost_per_kb" yaml:"cost_per_kb" json:"cost_per_kb"`
	RejectionCost float64 `mapstructure:"rejection_cost" yaml:"rejection_cost" json:"rejection_cost"`
}

// DefaultCostModel はデフォルトのコストモデルを返す
func DefaultCostModel() CostModel {
	return CostModel{PerKB: DefaultCostPerKB, RejectionCost: 1}
}

// WriteCost は size バイトの書き込みコストを返す（1KB未満は1KBとして扱う）
func (m CostModel) WriteCost(size int) float64 {
	kb := math.Ceil(float64(size) / 1024)
	if kb < 1 {
		kb = 1
	}
	return kb * m.PerKB
}

// Rejection は拒否された試行のコストを返す
func (m CostModel) Rejection() float64 {
	return m.RejectionCost
}
