package livefrag

import (
	"strings"
	"testing"
)

func TestContentChanged(t *testing.T) {
	long := strings.Repeat("<li>row</li>", 50)

	tests := []struct {
		name string
		old  string
		new  string
		want bool
	}{
		{"identical short", "<p>x</p>", "<p>x</p>", false},
		{"identical long", long, long, false},
		{"different short", "<p>x</p>", "<p>y</p>", true},
		{"different length", long, long + "x", true},
		{
			name: "equal length different head",
			old:  "A" + long,
			new:  "B" + long,
			want: true,
		},
		{
			name: "equal length different tail",
			old:  long + "A",
			new:  long + "B",
			want: true,
		},
		{
			name: "equal length middle difference caught by checksum",
			old:  long[:200] + "X" + long[201:],
			new:  long[:200] + "Y" + long[201:],
			want: true,
		},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := contentChanged(tt.old, tt.new); got != tt.want {
				t.Errorf("contentChanged() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBoundMarker(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"search", "data-live-bound-search"},
		{"My Binder", "data-live-bound-my-binder"},
	}
	for _, tt := range tests {
		if got := boundMarker(tt.name); got != tt.want {
			t.Errorf("boundMarker(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
