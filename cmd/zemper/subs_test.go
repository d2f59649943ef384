package main

import (
	"testing"
	"time"
)

func TestPartOffsets(t *testing.T) {
	tests := []struct {
		name        string
		n           int
		explicit    []float64
		partMinutes float64
		want        []time.Duration
		wantErr     bool
	}{
		{"spaced by part length", 3, nil, 5, []time.Duration{0, 5 * time.Minute, 10 * time.Minute}, false},
		{"explicit seconds", 2, []float64{0, 300.5}, 5, []time.Duration{0, 300*time.Second + 500*time.Millisecond}, false},
		{"count mismatch", 2, []float64{0}, 5, nil, true},
		{"negative", 1, []float64{-1}, 5, nil, true},
		{"zero part length", 2, nil, 0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := partOffsets(tt.n, tt.explicit, tt.partMinutes)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("offset %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
