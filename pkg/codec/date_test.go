package codec

import (
	"errors"
	"testing"
	"time"
)

func TestFormatDate(t *testing.T) {
	testCases := []struct {
		name  string
		dayID int
		want  string
	}{
		{name: "zero is empty", dayID: 0, want: ""},
		{name: "epoch plus one", dayID: 1, want: "1970-01-02"},
		{name: "leap day", dayID: 19782, want: "2024-02-29"},
		{name: "typical expiration", dayID: 19741, want: "2024-01-19"},
		{name: "before epoch", dayID: -1, want: "1969-12-31"},
		{name: "beyond cache window", dayID: 70000, want: "2161-08-27"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 2; i++ {
				if got := FormatDate(tc.dayID); got != tc.want {
					t.Errorf("FormatDate(%d) = %q, want %q", tc.dayID, got, tc.want)
				}
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	testCases := []struct {
		text string
		want int
	}{
		{text: "", want: 0},
		{text: "1970-01-01", want: 0},
		{text: "1970-01-02", want: 1},
		{text: "2024-01-19", want: 19741},
		{text: "2024-02-29", want: 19782},
		{text: "1969-12-31", want: -1},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			got, err := ParseDate(tc.text)
			if err != nil {
				t.Fatalf("ParseDate(%q) failed: %v", tc.text, err)
			}
			if got != tc.want {
				t.Errorf("ParseDate(%q) = %d, want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestParseDate_Malformed(t *testing.T) {
	for _, text := range []string{"2024-1-19", "2024/01/19", "20240119", "2024-02-30", "tomorrow", "2024-01-19T00:00:00Z"} {
		t.Run(text, func(t *testing.T) {
			_, err := ParseDate(text)
			if err == nil {
				t.Fatalf("ParseDate(%q) succeeded, want error", text)
			}
			var pe *ParseError
			if !errors.As(err, &pe) || pe.Kind != "date" {
				t.Errorf("expected date *ParseError, got %v", err)
			}
		})
	}
}

func TestDate_RoundTrip(t *testing.T) {
	for day := -800; day < 60000; day += 37 {
		text := FormatDate(day)
		got, err := ParseDate(text)
		if err != nil {
			t.Fatalf("ParseDate(%q) failed: %v", text, err)
		}
		if got != day {
			t.Fatalf("round trip of day %d gave %d via %q", day, got, text)
		}
	}
}

func TestDayID(t *testing.T) {
	ts := time.Date(2024, time.January, 19, 23, 59, 59, 0, time.UTC)
	if got := DayID(ts); got != 19741 {
		t.Errorf("DayID(%v) = %d, want 19741", ts, got)
	}

	before := time.Date(1969, time.December, 31, 0, 0, 1, 0, time.UTC)
	if got := DayID(before); got != -1 {
		t.Errorf("DayID(%v) = %d, want -1", before, got)
	}

	if got := DayTime(19741); !got.Equal(time.Date(2024, time.January, 19, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DayTime(19741) = %v", got)
	}
}
