package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"elastic-load/internal/loaderrors"
	"elastic-load/internal/scenario"
)

// EnvPrefix は環境変数の接頭辞（ELASTICLOAD_WORKLOAD_TOTAL_RECORDS など）
const EnvPrefix = "ELASTICLOAD"

// NewViper は環境変数を読む viper インスタンスを作成する
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load は設定ファイル（任意）・環境変数・フラグから設定を読み込み検証する
//
// 優先順位はフラグ、環境変数、ファイル、プリセット、デフォルトの順
func Load(v *viper.Viper, path string) (*FileConfig, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &loaderrors.ErrConfiguration{Name: "config", Value: path, Message: err.Error()}
		}
	}

	base := scenario.DefaultConfig()
	name := v.GetString("preset")
	if name != "" {
		preset, ok := scenario.GetPreset(name)
		if !ok {
			return nil, &loaderrors.ErrConfiguration{
				Name:    "preset",
				Value:   name,
				Message: fmt.Sprintf("available presets: %s", strings.Join(scenario.ListPresets(), ", ")),
			}
		}
		base = preset
	}
	if err := setDefaults(v, FromScenario(base)); err != nil {
		return nil, err
	}
	// YAML で省略されるキー
	v.SetDefault("preset", name)
	v.SetDefault("workload.template_file", "")
	v.SetDefault("store.redis.password", "")

	var config FileConfig
	if err := v.Unmarshal(&config, decodeHooks()); err != nil {
		if loaderrors.IsConfiguration(err) {
			return nil, err
		}
		return nil, &loaderrors.ErrConfiguration{Name: "config", Message: err.Error()}
	}
	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults は defaults の全キーを viper のデフォルト値にする
//
// キーが登録されていないと AutomaticEnv が Unmarshal に反映されない
func setDefaults(v *viper.Viper, defaults FileConfig) error {
	raw, err := yaml.Marshal(defaults)
	if err != nil {
		return errors.Wrap(err, "encoding defaults")
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return errors.Wrap(err, "decoding defaults")
	}
	setDefaultTree(v, "", tree)
	return nil
}

func setDefaultTree(v *viper.Viper, prefix string, tree map[string]any) {
	for key, value := range tree {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok {
			setDefaultTree(v, full, sub)
			continue
		}
		v.SetDefault(full, value)
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return val
}

// Validate は構造の検証と意味的な検証（分布の重み、遅延レベル、テンプレート）を行う
func Validate(config *FileConfig) error {
	if err := validate.Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errors.Wrap(err, "validating config")
		}
		var result error
		for _, fe := range verrs {
			result = multierror.Append(result, &loaderrors.ErrConfiguration{
				Name:    stripPrefix(fe.Namespace()),
				Value:   fe.Value(),
				Message: fmt.Sprintf("failed %q check", validationRule(fe)),
			})
		}
		return result
	}

	sc, err := config.ToScenarioConfig()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return err
	}
	if _, err := sc.Distribution(); err != nil {
		return err
	}
	return nil
}

func validationRule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// stripPrefix は名前空間の先頭（構造体名）を取り除く
func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}

// BindFlags はよく使う設定をフラグとして登録し viper に結び付ける
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.String("preset", "", "preset scenario ("+strings.Join(scenario.ListPresets(), ", ")+")")
	fs.Int("records", 0, "total number of records to write")
	fs.String("workers", "", "number of workers or auto")
	fs.Float64("max-throughput", 0, "maximum throughput used to size workers automatically")
	fs.String("kind", "", "workload kind (transactions, static, template)")
	fs.String("template", "", "JSON document template for the template workload")
	fs.Int64("seed", 0, "random seed")
	fs.Bool("rate", false, "change the delay between writes periodically")
	fs.Duration("rate-interval", 0, "interval between traffic pattern changes")
	fs.Duration("delay", 0, "initial delay between writes")
	fs.String("throttle-policy", "", "what to do with throttled writes (record, retry)")
	fs.String("backend", "", "store backend (memory, redis, postgres)")
	fs.Int("regions", 0, "number of replicated regions consumed capacity is divided by")
	fs.Bool("cleanup", false, "delete test resources when the run finishes")
	fs.Duration("report-interval", 0, "interval between progress lines")
	fs.String("api-addr", "", "address of the live status API, disabled when empty")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (text, json)")

	bindings := map[string]string{
		"preset":                  "preset",
		"workload.total_records":  "records",
		"workload.workers":        "workers",
		"workload.max_throughput": "max-throughput",
		"workload.kind":           "kind",
		"workload.template_file":  "template",
		"workload.seed":           "seed",
		"rate.enabled":            "rate",
		"rate.change_interval":    "rate-interval",
		"rate.initial_delay":      "delay",
		"throttle.policy":         "throttle-policy",
		"store.backend":           "backend",
		"store.regions":           "regions",
		"store.cleanup_on_finish": "cleanup",
		"report.interval":         "report-interval",
		"api.addr":                "api-addr",
		"log.level":               "log-level",
		"log.format":              "log-format",
	}
	var result error
	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "binding flag --%s", flag))
		}
	}
	return result
}
