package view

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerSupersedes(t *testing.T) {
	s := NewScheduler()
	var ran []string

	s.Schedule("first", func() { ran = append(ran, "first") })
	id := s.Schedule("second", func() { ran = append(ran, "second") })
	assert.NotEqual(t, uuid.Nil, id)

	job, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, "second", job.Name)
	assert.Equal(t, id, job.ID)

	assert.True(t, s.RunPending())
	assert.False(t, s.RunPending())
	assert.Equal(t, []string{"second"}, ran)
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	s.Schedule("job", func() { t.Fatal("cancelled job ran") })
	s.Cancel()

	_, ok := s.Pending()
	assert.False(t, ok)
	assert.False(t, s.RunPending())
}

func TestSchedulerFromOtherGoroutines(t *testing.T) {
	s := NewScheduler()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Schedule("post", func() {})
		}()
	}
	wg.Wait()

	select {
	case <-s.Wake():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not signal")
	}
	assert.True(t, s.RunPending())
	assert.False(t, s.RunPending(), "concurrent posts collapse into one job")
}
