package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/utils/clock"

	"elastic-load/internal/config"
	"elastic-load/internal/logger"
	"elastic-load/internal/scenario"
)

// rootCmd はサブコマンドを登録したルートコマンドを返す
func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "elastic-load",
		Short: "Adaptive concurrent write-workload driver",
		Long: `elastic-load writes generated records to a key-value store from many
concurrent workers, changing the delay between writes on a schedule and
reporting throughput, throttling and consumed capacity.

Settings are read from a YAML or JSON file (--config), environment
variables prefixed with ELASTICLOAD_ (ELASTICLOAD_WORKLOAD_TOTAL_RECORDS)
and flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		runCmd(),
		configCmd(),
		presetsCmd(),
		versionCmd(),
	)
	return cmd
}

// loadConfig はフラグとファイルから設定を読み込みロガーを設定する
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.FileConfig, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, err
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func addConfigFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().StringP("config", "c", "", "config file path (YAML/JSON)")
	if err := config.BindFlags(cmd.Flags(), v); err != nil {
		panic(err)
	}
}

// runCmd はシナリオを実行してレポートを表示する
func runCmd() *cobra.Command {
	v := config.NewViper()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a write workload against the configured store",
		Example: `  # プリセットシナリオを実行
  elastic-load run --preset quick

  # 設定ファイルから実行
  elastic-load run --config scenario.yaml

  # フラグでカスタマイズ
  elastic-load run --preset demo --records 50000 --backend redis --api-addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			return runScenario(cmd.OutOrStdout(), cfg)
		},
	}
	addConfigFlags(cmd, v)
	return cmd
}

func runScenario(out io.Writer, cfg *config.FileConfig) error {
	sc, err := cfg.ToScenarioConfig()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "elastic-load - Adaptive Write Workload Driver")
	fmt.Fprintln(out, "==============================================")
	fmt.Fprintf(out, "Scenario: %s\n", sc.Name)
	fmt.Fprintf(out, "Records: %d, Workers: %d\n", sc.TotalRecords, sc.ResolvedWorkers())
	fmt.Fprintf(out, "Store: %s, Regions: %d\n", cfg.Store.Backend, sc.Regions)
	fmt.Fprintf(out, "Rate changes: %v (every %v)\n", sc.Rate.Enabled, sc.Rate.Interval)
	fmt.Fprintln(out, "==============================================")
	fmt.Fprintln(out)

	// シグナルで実行中の書き込みを止める
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := cfg.Store.OpenStore(ctx, clock.RealClock{})
	if err != nil {
		return err
	}

	engine := scenario.New(sc, st)
	result, err := engine.Run(ctx)
	if result != nil {
		fmt.Fprintln(out, result.Report())
	}
	return err
}

// configCmd は有効な設定をYAMLで表示する
func configCmd() *cobra.Command {
	v := config.NewViper()
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	addConfigFlags(cmd, v)
	return cmd
}

// presetsCmd は利用可能なプリセットを表示する
func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List preset scenarios",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printPresets(cmd.OutOrStdout())
		},
	}
}

func printPresets(out io.Writer) {
	fmt.Fprintln(out, "利用可能なプリセットシナリオ:")
	fmt.Fprintln(out)
	for _, name := range scenario.ListPresets() {
		preset, _ := scenario.GetPreset(name)
		fmt.Fprintf(out, "  %-10s %s\n", name, preset.Description)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "使用例: elastic-load run --preset quick")
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "elastic-load version %s\n", version)
		},
	}
}
