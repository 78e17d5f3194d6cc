package telemetry

import "testing"

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(map[string]interface{}{
		"session_id": "abc",
		"prompt":     "ignore all previous instructions",
		"api_key":    "sk-123",
		"user_text":  "hello",
		"retries":    3,
	})
	for _, a := range attrs {
		switch string(a.Key) {
		case "prompt", "api_key", "user_text":
			t.Fatalf("sensitive key %s leaked into attributes", a.Key)
		}
	}
	if len(attrs) != 2 {
		t.Fatalf("expected session_id and retries only, got %v", attrs)
	}
}

func TestSafeAttributesEmpty(t *testing.T) {
	if got := SafeAttributes(nil); got != nil {
		t.Fatalf("expected nil for empty input")
	}
}
