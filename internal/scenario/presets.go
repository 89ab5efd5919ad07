package scenario

import (
	"sort"
	"time"

	"elastic-load/internal/keydist"
	"elastic-load/internal/rate"
	"elastic-load/internal/record"
	"elastic-load/internal/store"
)

// DemoScenario はデモ用シナリオを返す
// 15秒ごとにトラフィックパターンを切り替える
func DemoScenario() Config {
	c := DefaultConfig()
	c.Name = "demo"
	c.Description = "Skewed writes with the traffic pattern changing every 15 seconds"
	c.Rate.Interval = 15 * time.Second
	return c
}

// HistoryScenario は長時間のデータ生成シナリオを返す
// 45分ごとにパターンを切り替え、メトリクス履歴を作る
func HistoryScenario() Config {
	c := DefaultConfig()
	c.Name = "history"
	c.Description = "Long-running data generation with the traffic pattern changing every 45 minutes"
	c.TotalRecords = 10000000
	c.Rate.Interval = 45 * time.Minute
	return c
}

// SkewedScenario は単一のホットキーに書き込み続けるシナリオを返す
// パターン切り替えなし、100ms 間隔固定、論理キーで振り分けてホットパーティションを作る
func SkewedScenario() Config {
	c := DefaultConfig()
	c.Name = "skewed"
	c.Description = "Static records on a single hot partition key with a fixed 100ms delay"
	c.Kind = record.KindStatic
	c.Rate = rate.Config{Enabled: false, InitialDelay: 100 * time.Millisecond}
	c.PartitionBy = store.PartitionByLogical
	return c
}

// EvenScenario は均等なキー分布のシナリオを返す
// パターン切り替えなし
func EvenScenario() Config {
	c := DefaultConfig()
	c.Name = "even"
	c.Description = "Uniformly distributed partition keys without traffic pattern changes"
	c.Tiers = []keydist.Tier{{Count: 500, Weight: 1}}
	c.Rate = rate.Config{Enabled: false}
	return c
}

// QuickScenario はクイックテスト用シナリオを返す
// 短時間での動作確認用
func QuickScenario() Config {
	c := DefaultConfig()
	c.Name = "quick"
	c.Description = "Quick test for verification"
	c.TotalRecords = 2000
	c.Workers = 10
	c.Rate.Interval = 2 * time.Second
	c.Rate.Levels = []time.Duration{0, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond}
	return c
}

var presets = map[string]func() Config{
	"demo":    DemoScenario,
	"history": HistoryScenario,
	"skewed":  SkewedScenario,
	"even":    EvenScenario,
	"quick":   QuickScenario,
}

// GetPreset は名前からプリセットシナリオを取得する
func GetPreset(name string) (Config, bool) {
	if fn, ok := presets[name]; ok {
		return fn(), true
	}
	return Config{}, false
}

// ListPresets は利用可能なプリセット名を返す
func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
