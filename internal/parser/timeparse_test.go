package parser

import (
	"testing"
	"time"
)

func TestParseDateLine(t *testing.T) {
	tests := []struct {
		line    string
		y, m, d int
		ok      bool
	}{
		{"2025/01/02", 2025, 1, 2, true},
		{"2025/01/02 Friday", 2025, 1, 2, true},
		{"2025-01-02", 2025, 1, 2, true},
		{"2025.1.2", 2025, 1, 2, true},
		{"2025年1月2日", 2025, 1, 2, true},
		{"2025/01/02(金)", 2025, 1, 2, true},
		{"2025/01/02 週五", 2025, 1, 2, true},
		{"10:15\tAlice\thi", 0, 0, 0, false},
		{"hello world", 0, 0, 0, false},
		{"2025/13/02", 0, 0, 0, false},
	}
	for _, tt := range tests {
		y, m, d, ok := parseDateLine(tt.line)
		if ok != tt.ok {
			t.Errorf("parseDateLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if ok && (y != tt.y || m != tt.m || d != tt.d) {
			t.Errorf("parseDateLine(%q) = %d-%d-%d, want %d-%d-%d", tt.line, y, m, d, tt.y, tt.m, tt.d)
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in         string
		hh, mm, ss int
		ok         bool
	}{
		{"10:15", 10, 15, 0, true},
		{"10:15:30", 10, 15, 30, true},
		{"10:15 PM", 22, 15, 0, true},
		{"PM 10:15", 22, 15, 0, true},
		{"12:00 AM", 0, 0, 0, true},
		{"12:30 PM", 12, 30, 0, true},
		{"上午10:15", 10, 15, 0, true},
		{"下午 10:15", 22, 15, 0, true},
		{"午前10:15", 10, 15, 0, true},
		{"午後10:15", 22, 15, 0, true},
		{"25:00", 0, 0, 0, false},
		{"10:75", 0, 0, 0, false},
		{"banana", 0, 0, 0, false},
	}
	for _, tt := range tests {
		hh, mm, ss, ok := parseClock(tt.in)
		if ok != tt.ok {
			t.Errorf("parseClock(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && (hh != tt.hh || mm != tt.mm || ss != tt.ss) {
			t.Errorf("parseClock(%q) = %d:%d:%d, want %d:%d:%d", tt.in, hh, mm, ss, tt.hh, tt.mm, tt.ss)
		}
	}
}

func TestDateStateResolvesInZone(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	s := newDateState(loc)

	if _, ok := s.resolve(10, 15, 0); ok {
		t.Error("resolve before any date header should fail")
	}

	s.set(2025, 1, 2)
	ts, ok := s.resolve(10, 15, 0)
	if !ok {
		t.Fatal("resolve failed")
	}
	want := time.Date(2025, 1, 2, 10, 15, 0, 0, loc).Unix()
	if ts != want {
		t.Errorf("ts = %d, want %d", ts, want)
	}
}

func TestParseDateTimePrefix(t *testing.T) {
	y, mo, d, hh, mm, ss, rest, ok := parseDateTimePrefix("2023-05-01 12:30:45 张三(10001)")
	if !ok {
		t.Fatal("parse failed")
	}
	if y != 2023 || mo != 5 || d != 1 || hh != 12 || mm != 30 || ss != 45 {
		t.Errorf("parsed %d-%d-%d %d:%d:%d", y, mo, d, hh, mm, ss)
	}
	if rest != "张三(10001)" {
		t.Errorf("rest = %q", rest)
	}
}
