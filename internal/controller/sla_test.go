package controller

import (
	"testing"
	"time"
)

func TestEvaluateSLA(t *testing.T) {
	finite := StateSLA{MaxTimeInState: 10 * time.Second}
	infinite := StateSLA{Infinite: true}

	cases := []struct {
		name     string
		sla      StateSLA
		duration time.Duration
		want     bool
	}{
		{"within finite SLA", finite, 5 * time.Second, false},
		{"exactly at finite SLA boundary", finite, 10 * time.Second, false},
		{"above finite SLA", finite, 30 * time.Second, true},
		{"infinite SLA never stalls", infinite, 365 * 24 * time.Hour, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EvaluateSLA(tc.sla, tc.duration); got != tc.want {
				t.Errorf("EvaluateSLA(%+v, %v) = %v, want %v", tc.sla, tc.duration, got, tc.want)
			}
		})
	}
}
