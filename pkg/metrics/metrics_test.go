package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobLifecycleCounts(t *testing.T) {
	m := New()

	m.JobScheduled()
	m.JobScheduled()
	m.JobStarted()
	m.JobCompleted()
	m.JobStarted()
	m.JobFailed()

	snap := m.Snapshot()
	assert.Equal(t, int64(0), snap.Queue.Pending)
	assert.Equal(t, int64(0), snap.Queue.Active)
	assert.Equal(t, int64(1), snap.Queue.Completed)
	assert.Equal(t, int64(1), snap.Queue.Failed)
}

func TestSnapshotClampsPendingAtZero(t *testing.T) {
	m := New()

	// Jobs scheduled before a restart are picked up without a matching
	// JobScheduled in this process.
	m.JobStarted()
	m.JobStarted()

	snap := m.Snapshot()
	assert.Equal(t, int64(0), snap.Queue.Pending)
	assert.Equal(t, int64(2), snap.Queue.Active)
}

func TestJobStartedIsSafeUnderConcurrency(t *testing.T) {
	m := New()
	m.JobScheduled()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.JobStarted()
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(0), snap.Queue.Pending)
	assert.Equal(t, int64(50), snap.Queue.Active)
}
