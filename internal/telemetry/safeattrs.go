package telemetry

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Caller-supplied scan context is arbitrary; these keys never become span
// attributes no matter what the caller sends.
var denyKeys = []string{
	"prompt",
	"text",
	"input",
	"content",
	"authorization",
	"api_key",
	"token",
	"secret",
	"email",
	"phone",
}

// SafeAttributes converts a context map to OTEL attributes, dropping unsafe
// keys and oversized values.
func SafeAttributes(values map[string]interface{}) []attribute.KeyValue {
	if len(values) == 0 {
		return nil
	}
	var attrs []attribute.KeyValue
	for k, v := range values {
		lk := strings.ToLower(k)
		skip := false
		for _, bad := range denyKeys {
			if strings.Contains(lk, bad) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		switch val := v.(type) {
		case string:
			if len(val) > 256 {
				continue
			}
			attrs = append(attrs, attribute.String(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		default:
			// unsupported types ignored
		}
	}
	return attrs
}
