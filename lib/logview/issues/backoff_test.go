package issues

import (
	"testing"
	"time"
)

func TestComputeRetryDelayFirstFailure(t *testing.T) {
	for _, prev := range []time.Duration{0, time.Second, SlowPollInterval * 2} {
		if d := ComputeRetryDelay(1, prev); d != 0 {
			t.Errorf("first failure with previous delay %s: expected 0, got %s", prev, d)
		}
	}
}

func TestComputeRetryDelayGrowth(t *testing.T) {
	for run := 0; run < 50; run++ {
		prev := time.Duration(0)
		reachedCeiling := false
		for failures := 1; failures < 60; failures++ {
			d := ComputeRetryDelay(failures, prev)
			if reachedCeiling {
				if d < SlowPollInterval || d > SlowPollInterval+maxSlowPollJitter {
					t.Fatalf("failure %d: delay %s outside of [%s, %s]", failures, d, SlowPollInterval, SlowPollInterval+maxSlowPollJitter)
				}
			} else if d < prev {
				t.Fatalf("failure %d: delay decreased from %s to %s", failures, prev, d)
			}
			if d > SlowPollInterval {
				reachedCeiling = true
			}
			prev = d
		}
		if !reachedCeiling {
			t.Fatalf("delay never reached the slow poll interval, last delay %s", prev)
		}
	}
}

func TestComputeRetryDelaySecondFailure(t *testing.T) {
	// 0 * 1.5 + U[5,15)
	for i := 0; i < 1000; i++ {
		d := ComputeRetryDelay(2, 0)
		if d < minGrowthJitter || d >= maxGrowthJitter {
			t.Fatalf("unexpected second delay %s", d)
		}
	}
}

func TestComputeRetryDelayJitterIsNotScaled(t *testing.T) {
	for _, prev := range []time.Duration{10 * time.Millisecond, 200 * time.Millisecond, time.Second, 6 * time.Second} {
		for i := 0; i < 200; i++ {
			d := ComputeRetryDelay(5, prev)
			lo := prev*3/2 + minGrowthJitter
			hi := prev*3/2 + maxGrowthJitter
			if d < lo || d >= hi {
				t.Fatalf("previous %s: delay %s outside of [%s, %s)", prev, d, lo, hi)
			}
		}
	}
}
