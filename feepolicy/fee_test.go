package feepolicy

import "testing"

func TestFeeForSize(t *testing.T) {
	cases := []struct {
		bytes int
		rate  int64
		want  int64
	}{
		{bytes: 1000, rate: 1000, want: 1000},
		{bytes: 2000, rate: 1000, want: 2000},
		{bytes: 250, rate: 1000, want: 250},
		{bytes: 1, rate: 1000, want: 1}, // 1000*1/1000 = 1, nonzero, so no floor
		{bytes: 0, rate: 1000, want: 0},
		{bytes: 1000, rate: 0, want: 0},
		{bytes: 181, rate: 2000, want: 362},
	}
	for _, c := range cases {
		got := FeeForSize(c.bytes, c.rate)
		if got != c.want {
			t.Errorf("FeeForSize(%d, %d) = %d, want %d",
				c.bytes, c.rate, got, c.want)
		}
	}
}
