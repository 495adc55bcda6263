package configutil

import (
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/harunnryd/procura/pkg/errorsx"
)

// DecodeSettings decodes a free-form settings map into out. Keys match
// fields regardless of case, '_' or '-'; scalars are weakly typed and
// comma separated strings fill string slices.
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		MatchName: func(mapKey, fieldName string) bool {
			return NormalizeKey(mapKey) == NormalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	return errorsx.Wrap(decoder.Decode(input), errorsx.ReasonConfigInvalid)
}

func RequireString(value, path string) error {
	if strings.TrimSpace(value) == "" {
		return errorsx.Newf(errorsx.ReasonConfigInvalid, "%s is required", path)
	}
	return nil
}

// Millis converts a millisecond setting, using fallback for non-positive values.
func Millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// NormalizeKey lowercases and strips '_', '-' and spaces so that
// "Internal_Vendor-Fetcher" and "internalvendorfetcher" compare equal.
func NormalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	value = strings.ReplaceAll(value, " ", "")
	return value
}
