package playback

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		size      int64
		wantStart int64
		wantEnd   int64
		wantNil   bool
		wantErr   error
	}{
		{"empty header", "", 1000, 0, 0, true, nil},
		{"open ended from zero", "bytes=0-", 1000, 0, 999, false, nil},
		{"seek into the middle", "bytes=524288-", 1048576, 524288, 1048575, false, nil},
		{"suffix range", "bytes=-500", 1000, 500, 999, false, nil},
		{"single byte", "bytes=0-0", 1000, 0, 0, false, nil},
		{"end clamped to size", "bytes=0-2000", 1000, 0, 999, false, nil},
		{"suffix larger than file", "bytes=-2000", 500, 0, 499, false, nil},
		{"multi range takes first", "bytes=0-99, 200-299", 1000, 0, 99, false, nil},

		{"start at size", "bytes=1000-", 1000, 0, 0, false, ErrUnsatisfiable},
		{"start after end", "bytes=50-10", 1000, 0, 0, false, ErrUnsatisfiable},
		{"empty file", "bytes=0-", 0, 0, 0, false, ErrUnsatisfiable},
		{"wrong unit", "frames=0-100", 1000, 0, 0, false, ErrInvalidRange},
		{"missing dash", "bytes=100", 1000, 0, 0, false, ErrInvalidRange},
		{"invalid start", "bytes=abc-100", 1000, 0, 0, false, ErrInvalidRange},
		{"zero suffix", "bytes=-0", 1000, 0, 0, false, ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.size)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseRange() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRange() unexpected error: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("ParseRange() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("ParseRange() = nil, want non-nil")
			}
			if got.Start != tt.wantStart || got.End != tt.wantEnd {
				t.Errorf("ParseRange() = {%d, %d}, want {%d, %d}", got.Start, got.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestByteRange(t *testing.T) {
	r := ByteRange{Start: 500, End: 999}
	if r.Length() != 500 {
		t.Errorf("Length() = %d", r.Length())
	}
	if got := r.ContentRange(1000); got != "bytes 500-999/1000" {
		t.Errorf("ContentRange() = %s", got)
	}
}
