package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketPeekCommitWithinWindow(t *testing.T) {
	b := &Bucket{MaxAmount: 2, Duration: 1000, left: 2, resetsAt: 1000}

	ok, left, all, _ := b.Peek(100, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(2), left, "Peek must not mutate left")
	assert.Equal(t, int64(2), all)
	b.Commit(1)
	assert.Equal(t, int64(1), b.left)

	ok, left, _, _ = b.Peek(100, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(1), left)
	b.Commit(1)
	assert.Equal(t, int64(0), b.left)

	ok, _, _, _ = b.Peek(100, 1)
	assert.False(t, ok)
	assert.Equal(t, int64(1), b.Limited)
}

func TestBucketPeekRollsOverWindow(t *testing.T) {
	b := &Bucket{MaxAmount: 1, Duration: 500, left: 0, resetsAt: 1000}

	ok, left, _, _ := b.Peek(999, 1)
	assert.False(t, ok, "window hasn't reset yet")
	_ = left

	ok, left, _, _ = b.Peek(1500, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(1), left, "rollover refills to MaxAmount without a Commit")
	b.Commit(1)
	assert.Equal(t, int64(0), b.left)
}

func TestBucketCommitIsAllOrNothingAcrossBuckets(t *testing.T) {
	tight := &Bucket{MaxAmount: 1, Duration: 1000, left: 0, resetsAt: 1000}
	loose := &Bucket{MaxAmount: 100, Duration: 60000, left: 100, resetsAt: 60000}

	tightOK, _, _, _ := tight.Peek(100, 1)
	looseOK, _, _, _ := loose.Peek(100, 1)
	assert.False(t, tightOK)
	assert.True(t, looseOK)

	if tightOK && looseOK {
		tight.Commit(1)
		loose.Commit(1)
	}
	assert.Equal(t, int64(100), loose.left, "loose bucket must keep its quota since the window overall was Limited")
}

func TestRemoteStateDegradeToLocal(t *testing.T) {
	r := &RemoteState{ServerApprovedLeft: -1}
	_, notReconciled, _, _ := r.TryAcquire(1)
	assert.True(t, notReconciled)

	r.Reconcile(100, 5, true)
	ok, _, degraded, left := r.TryAcquire(3)
	assert.True(t, ok)
	assert.False(t, degraded)
	assert.Equal(t, int64(2), left)

	r.Reconcile(200, 0, false)
	ok, _, degraded, _ = r.TryAcquire(1)
	assert.False(t, ok)
	assert.True(t, degraded)
}

func TestNewRateLimitWindowTracksClimbMax(t *testing.T) {
	rule := LimitRule{
		Amounts: []AmountRule{{MaxAmount: 10, Duration: 1000}, {MaxAmount: 100, Duration: 60000}},
		Cluster: "quota-cluster",
	}
	w := NewRateLimitWindow(WindowKey{RuleID: "r1"}, rule, 0)

	assert.Equal(t, int64(100), w.ClimbMax())
	assert.NotNil(t, w.RemoteState())
	assert.Len(t, w.Buckets, 2)

	w.SetClimbMax(50)
	assert.Equal(t, int64(50), w.ClimbMax())
	for _, b := range w.Buckets {
		assert.Equal(t, int64(50), b.MaxAmount)
	}
}
