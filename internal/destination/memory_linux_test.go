//go:build linux

package destination

import "testing"

func TestParseCgroupLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"max\n", 0, false},
		{"", 0, false},
		{"536870912\n", 512 << 20, true},
		{"9223372036854771712", 0, false},
		{"garbage", 0, false},
		{"0", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseCgroupLimit(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseCgroupLimit(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
