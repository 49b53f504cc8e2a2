package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"a@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+34612345678", "**********78"},
		{"12", "**"},
		{"", "**"},
	}
	for _, tt := range tests {
		if got := RedactPhone(tt.in); got != tt.want {
			t.Errorf("RedactPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactPIIValueByKey(t *testing.T) {
	if got := redactPIIValue("customer_email", "jane@food.io"); got != "ja***@food.io" {
		t.Errorf("email key not redacted: %q", got)
	}
	if got := redactPIIValue("phone_number", "5551234567"); got != "********67" {
		t.Errorf("phone key not redacted: %q", got)
	}
	// Emails embedded in generic fields are caught too.
	got := redactPIIValue("detail", "contact jane@food.io about her order")
	if got != "contact ja***@food.io about her order" {
		t.Errorf("embedded email not redacted: %q", got)
	}
}
