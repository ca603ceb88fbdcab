package response

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	const size = 10000

	tests := []struct {
		header  string
		want    RangeSpec
		wantErr error
	}{
		{"bytes=0-99", RangeSpec{0, 99, size}, nil},
		{"bytes=9990-", RangeSpec{9990, 9999, size}, nil},
		{"bytes=-500", RangeSpec{9500, 9999, size}, nil},
		{"bytes=-20000", RangeSpec{0, 9999, size}, nil},
		{"bytes=0-20000", RangeSpec{0, 9999, size}, nil},
		{"bytes=9999-9999", RangeSpec{9999, 9999, size}, nil},
		{" bytes=5-6 ", RangeSpec{5, 6, size}, nil},
		{"bytes=10000-", RangeSpec{}, ErrUnsatisfiable},
		{"bytes=10000-10005", RangeSpec{}, ErrUnsatisfiable},
		{"bytes=5-2", RangeSpec{}, ErrUnsatisfiable},
		{"bytes=-0", RangeSpec{}, ErrUnsatisfiable},
		{"bytes=0-1,5-6", RangeSpec{}, ErrNoRange},
		{"items=0-1", RangeSpec{}, ErrNoRange},
		{"Bytes=0-1", RangeSpec{}, ErrNoRange},
		{"bytes=+1-2", RangeSpec{}, ErrNoRange},
		{"bytes= 1-2", RangeSpec{}, ErrNoRange},
		{"bytes=-", RangeSpec{}, ErrNoRange},
		{"bytes=a-b", RangeSpec{}, ErrNoRange},
		{"bytes=1", RangeSpec{}, ErrNoRange},
		{"bytes=99999999999999999999-", RangeSpec{}, ErrNoRange},
		{"", RangeSpec{}, ErrNoRange},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := ParseRange(tt.header, size)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v (%+v)", tt.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseRange_EmptyResource(t *testing.T) {
	for _, header := range []string{"bytes=0-", "bytes=0-0", "bytes=-5"} {
		if _, err := ParseRange(header, 0); !errors.Is(err, ErrUnsatisfiable) {
			t.Errorf("%s on empty resource: expected ErrUnsatisfiable, got %v", header, err)
		}
	}
}

func TestParseRange_Invariant(t *testing.T) {
	sizes := []int64{1, 2, 17, 4096}
	headers := []string{"bytes=0-0", "bytes=0-", "bytes=-1", "bytes=1-3", "bytes=-100", "bytes=3-100000"}

	for _, size := range sizes {
		for _, h := range headers {
			rs, err := ParseRange(h, size)
			if err != nil {
				continue
			}
			if rs.Start < 0 || rs.Start > rs.End || rs.End > size-1 || rs.Total != size {
				t.Errorf("ParseRange(%q, %d) broke the range invariant: %+v", h, size, rs)
			}
			if rs.Length() != rs.End-rs.Start+1 {
				t.Errorf("Length mismatch for %+v", rs)
			}
		}
	}
}

func TestRangeSpec_Formatting(t *testing.T) {
	rs := RangeSpec{Start: 1000, End: 1999, Total: 50000}
	if got := rs.ContentRange(); got != "bytes 1000-1999/50000" {
		t.Errorf("ContentRange() = %q", got)
	}
	if got := UnsatisfiedRange(50000); got != "bytes */50000" {
		t.Errorf("UnsatisfiedRange() = %q", got)
	}
}
