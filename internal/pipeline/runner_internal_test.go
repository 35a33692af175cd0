package pipeline

import "testing"

func TestWorkersFor(t *testing.T) {
	cases := []struct {
		cfg    Config
		assets int
		want   int
	}{
		{Config{Workers: 5}, 3, 3},
		{Config{Workers: 5}, 10, 5},
		{Config{Workers: 5, TestMode: true}, 10, 1},
		{Config{Workers: 0}, 4, 1},
	}
	for _, tc := range cases {
		if got := tc.cfg.workersFor(tc.assets); got != tc.want {
			t.Fatalf("%+v with %d assets: got %d, want %d", tc.cfg, tc.assets, got, tc.want)
		}
	}
}
