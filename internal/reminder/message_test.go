package reminder

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFormatMessage(t *testing.T) {
	t.Parallel()
	got := FormatMessage("Pay rent", "2025-03-10", "09:00")
	want := `Reminder: Your task "Pay rent" is due on 2025-03-10 at 09:00.`
	if got != want {
		t.Fatalf("FormatMessage = %q, want %q", got, want)
	}
}

func TestFormatMessageKeepsTitleLiteral(t *testing.T) {
	t.Parallel()
	// Quotes and backslashes in the title pass through unescaped.
	got := FormatMessage(`Call "Bob" re: C:\invoices`, "2025-03-10", "09:00")
	want := `Reminder: Your task "Call "Bob" re: C:\invoices" is due on 2025-03-10 at 09:00.`
	if got != want {
		t.Fatalf("FormatMessage = %q, want %q", got, want)
	}
}

func TestTruncateSMS(t *testing.T) {
	t.Parallel()
	short := "fits fine"
	if got := TruncateSMS(short); got != short {
		t.Fatalf("short body changed: %q", got)
	}

	long := strings.Repeat("a", 200)
	got := TruncateSMS(long)
	if n := utf8.RuneCountInString(got); n != 160 {
		t.Fatalf("truncated length = %d, want 160", n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("missing ellipsis suffix: %q", got[len(got)-5:])
	}
	if got[:157] != long[:157] {
		t.Fatal("truncation altered the prefix")
	}

	exact := strings.Repeat("b", 160)
	if got := TruncateSMS(exact); got != exact {
		t.Fatal("exactly 160 chars must pass through untouched")
	}
}
