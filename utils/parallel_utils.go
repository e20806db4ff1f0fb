package utils

import (
	"fmt"
	"sync"
)

// MsgTag disambiguates the phases of a multi round exchange.
type MsgTag uint8

// Envelope is one tagged message in flight between two ranks.
type Envelope[T any] struct {
	From, To int
	Tag      MsgTag
	Payload  T
}

// MailBox connects NP ranks with one inbound channel each. Sends never block
// as long as no rank has more than Depth messages outstanding per peer.
type MailBox[T any] struct {
	NP           int
	Depth        int
	MessageChans []chan Envelope[T] // One for each rank
	mu           sync.Mutex
	sent         int
	OnSend       func(e Envelope[T]) // Optional hook, called under the lock
	done         chan struct{}
	abortOnce    sync.Once
}

func NewMailBox[T any](NP, depth int) *MailBox[T] {
	mb := &MailBox[T]{
		NP:           NP,
		Depth:        depth,
		MessageChans: make([]chan Envelope[T], NP),
		done:         make(chan struct{}),
	}
	for n := 0; n < NP; n++ {
		mb.MessageChans[n] = make(chan Envelope[T], depth*NP) // Worst case is all-to-all
	}
	return mb
}

func (mb *MailBox[T]) PostMessage(myRank, targetRank int, tag MsgTag, msg T) {
	if targetRank < 0 || targetRank > mb.NP-1 {
		panic(fmt.Sprintf("Target rank %d out of bounds", targetRank))
	}
	e := Envelope[T]{From: myRank, To: targetRank, Tag: tag, Payload: msg}
	mb.mu.Lock()
	mb.sent++
	if mb.OnSend != nil {
		mb.OnSend(e)
	}
	mb.mu.Unlock()
	mb.MessageChans[targetRank] <- e
}

// ReceiveMessage blocks until a message for myRank arrives. Once any rank
// calls Abort, waiting receivers fail with a CommError instead of hanging.
func (mb *MailBox[T]) ReceiveMessage(myRank int) (e Envelope[T]) {
	select {
	case e = <-mb.MessageChans[myRank]:
		return
	case <-mb.done:
		CommErrorf(fmt.Sprintf("rank %d", myRank), "exchange aborted by another rank")
	}
	return
}

// Abort releases every rank blocked in ReceiveMessage.
func (mb *MailBox[T]) Abort() {
	mb.abortOnce.Do(func() { close(mb.done) })
}

func (mb *MailBox[T]) Sent() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.sent
}

type PartitionMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	if ParallelDegree < 1 {
		ParallelDegree = 1
	}
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

func (pm *PartitionMap) GetBucket(kDim int) (bucketNum, min, max int) {
	_, bucketNum, min, max = pm.getBucketWithTryCount(kDim)
	return
}

func (pm *PartitionMap) getBucketWithTryCount(kDim int) (tryCount, bucketNum, min, max int) {
	if pm.MaxIndex == 0 {
		return 0, -1, 0, 0
	}
	// Initial guess
	bucketNum = int(float64(pm.ParallelDegree*kDim) / float64(pm.MaxIndex))
	if bucketNum >= pm.ParallelDegree {
		bucketNum = pm.ParallelDegree - 1
	}
	for !(pm.Partitions[bucketNum][0] <= kDim && pm.Partitions[bucketNum][1] > kDim) {
		if pm.Partitions[bucketNum][0] > kDim {
			bucketNum--
		} else {
			bucketNum++
		}
		if bucketNum == -1 || bucketNum == pm.ParallelDegree {
			return 0, -1, 0, 0
		}
		tryCount++
	}
	min, max = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketDimension(bn int) (kMax int) {
	if bn == -1 {
		kMax = pm.MaxIndex
		return
	}
	var (
		k1, k2 = pm.GetBucketRange(bn)
	)
	kMax = k2 - k1
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	// Splits one dimension into ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = pm.MaxIndex / (pm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}

// ParallelFor runs body once per non empty bucket of [0, pm.MaxIndex) on
// its own goroutine and returns after all buckets finish. Buckets are
// disjoint, so anything body writes per thread needs no lock. A panic on
// any goroutine is re-raised on the caller's goroutine once all threads
// have stopped.
func (pm *PartitionMap) ParallelFor(body func(thread, kMin, kMax int)) {
	var (
		wg     sync.WaitGroup
		panics = make([]interface{}, pm.ParallelDegree)
	)
	for np := 0; np < pm.ParallelDegree; np++ {
		if pm.GetBucketDimension(np) == 0 {
			continue
		}
		kMin, kMax := pm.GetBucketRange(np)
		wg.Add(1)
		go func(np, kMin, kMax int) {
			defer wg.Done()
			defer func() {
				panics[np] = recover()
			}()
			body(np, kMin, kMax)
		}(np, kMin, kMax)
	}
	wg.Wait()
	for _, p := range panics {
		if p != nil {
			panic(p)
		}
	}
}
