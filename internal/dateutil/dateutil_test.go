package dateutil

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	got, err := Parse("20200229")
	if err != nil {
		t.Fatalf("Parse(20200229) failed: %v", err)
	}
	want := time.Date(2020, 2, 29, 0, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("Parse(20200229) = %v; want %v", got, want)
	}

	for _, bad := range []string{"", "2020-02-29", "20200230", "2020022", "abcdefgh", "20201301"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) unexpectedly succeeded", bad)
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	const date = "20191231"
	parsed, err := Parse(date)
	if err != nil {
		t.Fatalf("Parse(%s) failed: %v", date, err)
	}
	if got := Format(parsed); got != date {
		t.Errorf("Format(Parse(%s)) = %s", date, got)
	}
}

func TestDayOfWeek(t *testing.T) {
	cases := []struct {
		date string
		want int
	}{
		{"20200106", 1}, // Monday
		{"20200109", 4}, // Thursday
		{"20200111", 6}, // Saturday
		{"20200112", 7}, // Sunday
	}
	for _, c := range cases {
		parsed, err := Parse(c.date)
		if err != nil {
			t.Fatalf("Parse(%s) failed: %v", c.date, err)
		}
		if got := DayOfWeek(parsed); got != c.want {
			t.Errorf("DayOfWeek(%s) = %d; want %d", c.date, got, c.want)
		}
	}
}

func TestMonth(t *testing.T) {
	if got := Month("20200115"); got != "202001" {
		t.Errorf("Month(20200115) = %s; want 202001", got)
	}
}
