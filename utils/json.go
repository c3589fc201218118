package utils

import (
	"bytes"

	"github.com/goccy/go-json"
)

// ===================================================================
// JSON CONVERSION HELPERS
// ===================================================================

// NormalizeJSONObject returns raw as a compact JSON object string. Empty
// input or a JSON null becomes "{}".
func NormalizeJSONObject(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}", nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return "", err
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
