// Package scenario は負荷実行全体を組み立てるオーケストレータを提供する。
//
// Engine はストアのセットアップ、ワーカー数の決定とレコード件数の分割、
// RateController・Reporter・ワーカープールの起動を行い、
// 全ワーカーの終了を待ってからバックグラウンドタスクを止める。
//
// # 機能
//
// - ワーカー数の自動算出（最大スループット / 1ワーカーあたりのスループット、下限あり）
// - レコード件数の均等分割（余りは生成しない）
// - スロットリング時のポリシー（record / retry）
// - 終了時のテストリソース削除
// - 実行結果のレポート生成
//
// # プリセットシナリオ
//
// - demo: 15秒ごとにトラフィックパターンを切り替える
// - history: 45分ごとに切り替える長時間のデータ生成
// - skewed: 単一ホットキーへの固定間隔書き込み
// - even: 均等なキー分布
// - quick: 短時間の動作確認
//
// # 使用例
//
//	config := scenario.DemoScenario()
//	engine := scenario.New(config, st)
//	result, err := engine.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Report())
package scenario
