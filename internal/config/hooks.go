package config

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"elastic-load/internal/loaderrors"
)

// WorkerCount はワーカー数（0 は "auto"）
type WorkerCount int

// Auto は自動算出かどうかを返す
func (w WorkerCount) Auto() bool {
	return w == 0
}

func (w WorkerCount) String() string {
	if w.Auto() {
		return "auto"
	}
	return strconv.Itoa(int(w))
}

// MarshalYAML は 0 を "auto" として書き出す
func (w WorkerCount) MarshalYAML() (any, error) {
	if w.Auto() {
		return "auto", nil
	}
	return int(w), nil
}

// ParseWorkerCount は "auto" または非負の整数を解釈する
func ParseWorkerCount(s string) (WorkerCount, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "auto") {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &loaderrors.ErrConfiguration{
			Name:    "workload.workers",
			Value:   s,
			Message: "expected a non-negative integer or auto",
		}
	}
	return WorkerCount(n), nil
}

// WorkerCountHookFunc は文字列の workers を WorkerCount に変換する
func WorkerCountHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(WorkerCount(0)) {
			return data, nil
		}
		return ParseWorkerCount(data.(string))
	}
}

// decodeHooks は viper.Unmarshal 用のフックを1つに合成する
func decodeHooks() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		WorkerCountHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}
