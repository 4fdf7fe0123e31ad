package gateway

import (
	"errors"
	"fmt"
	"testing"
)

func TestReason(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"code preferred", &Error{Provider: "twilio", Code: "21211", Message: "invalid To"}, "twilio error: 21211"},
		{"wrapped code", fmt.Errorf("send: %w", &Error{Provider: "twilio", Code: "21610"}), "twilio error: 21610"},
		{"message only", &Error{Provider: "webhook", Message: "down"}, "webhook error: down"},
		{"plain error", errors.New("connection reset"), "connection reset"},
	}

	for _, tc := range cases {
		if got := Reason(tc.err); got != tc.want {
			t.Fatalf("%s: Reason() = %q, want %q", tc.name, got, tc.want)
		}
	}
}
