package strutil

import "testing"

func TestTruncateUTF8(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "h"},
		{"日本語", 4, "日"},
		{"日本語", 3, "日"},
		{"abc", 0, ""},
		{"", 5, ""},
	}
	for _, tc := range cases {
		if got := TruncateUTF8(tc.in, tc.max); got != tc.want {
			t.Errorf("TruncateUTF8(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestEllipsize(t *testing.T) {
	if got := Ellipsize("hello world", 5); got != "hello..." {
		t.Fatalf("got %q", got)
	}
	if got := Ellipsize("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
}
