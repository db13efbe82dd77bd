// Package backoff computes the delay before a channel is reconnected.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before retry number count, counting from 1.
type Backoff interface {
	Next(count int64) time.Duration
}

// Default is exponential from one second, capped at one minute.
func Default() Backoff {
	return Capped(ExponentialD(), time.Minute)
}

// Linear waits base + step*count.
func Linear(base, step time.Duration) Backoff {
	return linearBackoff{base: base, step: step}
}

// LinearD waits 1s, then 5s more for every retry.
func LinearD() Backoff {
	return Linear(time.Second, time.Second*5)
}

// Random waits a uniformly random duration in [min, max).
func Random(min, max time.Duration) Backoff {
	if max < min {
		min, max = max, min
	}
	return randomBackoff{min: min, max: max}
}

// RandomD waits between 2s and 5s.
func RandomD() Backoff {
	return Random(time.Second*2, time.Second*5)
}

// Exponential waits base * exp^(count-1).
func Exponential(base time.Duration, exp float64) Backoff {
	return exponentialBackoff{base: base, exponent: exp}
}

// ExponentialD doubles from one second.
func ExponentialD() Backoff {
	return Exponential(time.Second, 2)
}

// Constant always waits dur.
func Constant(dur time.Duration) Backoff {
	return constantBackoff{duration: dur}
}

// ConstantD waits 3s.
func ConstantD() Backoff {
	return Constant(time.Second * 3)
}

// Capped limits b to max.
func Capped(b Backoff, max time.Duration) Backoff {
	return cappedBackoff{b: b, max: max}
}

type constantBackoff struct {
	duration time.Duration
}

func (b constantBackoff) Next(count int64) time.Duration {
	return b.duration
}

type exponentialBackoff struct {
	base     time.Duration
	exponent float64
}

func (b exponentialBackoff) Next(count int64) time.Duration {
	if count < 1 {
		count = 1
	}
	d := float64(b.base) * math.Pow(b.exponent, float64(count-1))
	if d > math.MaxInt64 || math.IsInf(d, 0) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

type linearBackoff struct {
	base time.Duration
	step time.Duration
}

func (b linearBackoff) Next(count int64) time.Duration {
	return b.base + time.Duration(count)*b.step
}

type randomBackoff struct {
	min time.Duration
	max time.Duration
}

func (b randomBackoff) Next(count int64) time.Duration {
	if b.max == b.min {
		return b.min
	}
	return b.min + rand.N(b.max-b.min)
}

type cappedBackoff struct {
	b   Backoff
	max time.Duration
}

func (b cappedBackoff) Next(count int64) time.Duration {
	return min(b.b.Next(count), b.max)
}
