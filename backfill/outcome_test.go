package backfill

import (
	"errors"
	"sync"
	"testing"

	"github.com/poiesic/embedsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	boom := errors.New("boom")
	o := newOutcome()
	o.addPass(4)
	o.add(Entry{ID: "1", Status: StatusUpdated})
	o.add(Entry{ID: "2", Status: StatusSkipped, Detail: "empty text"})
	o.add(Entry{ID: "3", Status: StatusFailed, Detail: "update failed", Err: boom})
	o.add(Entry{ID: "4", Status: StatusUpdated})

	assert.Equal(t, Counts{Updated: 2, Skipped: 1, Failed: 1}, o.Counts())
	assert.Equal(t, 4, o.Counts().Total())
	assert.Len(t, o.Entries(), 4)

	failed := o.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, core.RecordID("3"), failed[0].ID)

	assert.ErrorIs(t, o.Err(), boom)
	assert.Contains(t, o.Err().Error(), "record 3")
	assert.Equal(t, "1 passes, 4 selected: updated=2 skipped=1 failed=1", o.Summary())
}

func TestOutcome_Empty(t *testing.T) {
	o := newOutcome()
	assert.Equal(t, Counts{}, o.Counts())
	assert.Empty(t, o.Failed())
	assert.NoError(t, o.Err())
}

func TestOutcome_Merge(t *testing.T) {
	a := newOutcome()
	a.addPass(1)
	a.add(Entry{ID: "1", Status: StatusUpdated})

	b := newOutcome()
	b.addPass(2)
	b.add(Entry{ID: "2", Status: StatusSkipped})
	b.add(Entry{ID: "3", Status: StatusUpdated})

	a.merge(b)
	assert.Equal(t, 2, a.Passes())
	assert.Equal(t, 3, a.Selected())
	assert.Equal(t, Counts{Updated: 2, Skipped: 1}, a.Counts())
}

func TestOutcome_Concurrent(t *testing.T) {
	o := newOutcome()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.add(Entry{ID: "x", Status: StatusUpdated})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, o.Counts().Updated)
}
