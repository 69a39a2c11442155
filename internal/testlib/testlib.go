package testlib

import (
	"sync"
	"testing"
)

// Repeat runs f sequentially n times
func Repeat(t *testing.T, n int, f func(t *testing.T)) {
	for i := 0; i < n; i++ {
		f(t)
	}
}

// RepeatConcurrent runs f in n goroutines and waits for all of them to
// finish before returning
func RepeatConcurrent(t *testing.T, n int, f func(t *testing.T)) {
	wg := sync.WaitGroup{}
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			f(t)
		}()
	}
	wg.Wait()
}
