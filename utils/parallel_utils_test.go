package utils

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionMap(t *testing.T) {
	{ // Bucket sizes
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				maxK := pm.GetBucketDimension(np)
				histo[maxK]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 32}, getHisto(256, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		assert.Equal(t, 287, getTotal(getHisto(287, 32)))
		for n := 64; n < 2000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // Maximum imbalance of 1
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // Inverted bucket lookup
		for maxIndex := 10; maxIndex < 500; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				tryCount, bn, min, max := pm.getBucketWithTryCount(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax && tryCount <= 1)
			}
		}
	}
	pm := NewPartitionMap(0, 3)
	assert.Equal(t, 1, pm.ParallelDegree)
	bn, _, _ := NewPartitionMap(2, 0).GetBucket(0)
	assert.Equal(t, -1, bn)
}

func TestParallelFor(t *testing.T) {
	var (
		n    = 101
		seen = make([]int, n)
		pm   = NewPartitionMap(4, n)
	)
	pm.ParallelFor(func(thread, kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			seen[k] += thread + 1
		}
	})
	for k, s := range seen {
		bn, _, _ := pm.GetBucket(k)
		assert.Equal(t, bn+1, s, "index %d", k)
	}

	// More threads than items leaves the trailing buckets idle
	var (
		mu      sync.Mutex
		threads []int
	)
	NewPartitionMap(8, 3).ParallelFor(func(thread, kMin, kMax int) {
		assert.Equal(t, 1, kMax-kMin)
		mu.Lock()
		threads = append(threads, thread)
		mu.Unlock()
	})
	assert.ElementsMatch(t, []int{0, 1, 2}, threads)

	// A fatal error on one thread comes back on the caller
	fe := CatchFatal(func() {
		pm.ParallelFor(func(thread, kMin, kMax int) {
			if thread == 2 {
				InternalErrorf("worker", "thread %d failed", thread)
			}
		})
	})
	require.NotNil(t, fe)
	assert.Equal(t, InternalError, fe.Kind)
	assert.Equal(t, "thread 2 failed", fe.Msg)
}

func TestMailBox(t *testing.T) {
	const np = 3
	var (
		mb    = NewMailBox[int](np, 2)
		mu    sync.Mutex
		tags  = make(map[MsgTag]int)
		total = make([]int, np)
	)
	mb.OnSend = func(e Envelope[int]) {
		mu.Lock()
		tags[e.Tag]++
		mu.Unlock()
	}
	// Every rank sends its rank number to every other rank
	NewPartitionMap(np, np).ParallelFor(func(_, kMin, kMax int) {
		for r := kMin; r < kMax; r++ {
			for to := 0; to < np; to++ {
				if to != r {
					mb.PostMessage(r, to, MsgTag(r), r)
				}
			}
			for i := 0; i < np-1; i++ {
				e := mb.ReceiveMessage(r)
				assert.Equal(t, r, e.To)
				assert.Equal(t, e.From, e.Payload)
				total[r] += e.Payload
			}
		}
	})
	assert.Equal(t, []int{3, 2, 1}, total)
	assert.Equal(t, 6, mb.Sent())
	assert.Equal(t, map[MsgTag]int{0: 2, 1: 2, 2: 2}, tags)

	assert.Panics(t, func() { mb.PostMessage(0, np, 0, 1) })

	// Abort releases a receiver that would otherwise wait forever
	mb.Abort()
	mb.Abort()
	fe := CatchFatal(func() { mb.ReceiveMessage(1) })
	require.NotNil(t, fe)
	assert.Equal(t, CommError, fe.Kind)
	assert.Equal(t, "rank 1", fe.Object)
}
