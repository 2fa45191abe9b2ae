package storage_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/storage"
)

func TestTempStorage_Lifecycle(t *testing.T) {
	s := storage.NewTempStorage(time.Minute)
	defer s.Close()

	id := storage.GenerateJobID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	s.StoreJob(&domain.ExtractionJob{JobID: id, Status: domain.StatusProcessing, CreatedAt: time.Now()})

	ok := s.UpdateJob(id, func(j *domain.ExtractionJob) { j.Status = domain.StatusCompleted })
	assert.True(t, ok)
	assert.Equal(t, domain.StatusCompleted, s.GetJob(id).Status)

	assert.False(t, s.UpdateJob("missing", func(*domain.ExtractionJob) {}))
	assert.Nil(t, s.GetJob("missing"))

	s.DeleteJob(id)
	assert.Nil(t, s.GetJob(id))
	assert.Zero(t, s.Len())
}

func TestTempStorage_GetJobReturnsCopy(t *testing.T) {
	s := storage.NewTempStorage(time.Minute)
	defer s.Close()

	s.StoreJob(&domain.ExtractionJob{JobID: "a", Status: domain.StatusProcessing})
	got := s.GetJob("a")
	got.Status = domain.StatusFailed

	assert.Equal(t, domain.StatusProcessing, s.GetJob("a").Status)
}

func TestTempStorage_Cleanup(t *testing.T) {
	s := storage.NewTempStorage(time.Minute)
	defer s.Close()

	now := time.Now()
	s.StoreJob(&domain.ExtractionJob{JobID: "old", CreatedAt: now.Add(-2 * time.Minute)})
	s.StoreJob(&domain.ExtractionJob{JobID: "new", CreatedAt: now})

	assert.Equal(t, 1, s.Cleanup(now))
	assert.Nil(t, s.GetJob("old"))
	assert.NotNil(t, s.GetJob("new"))
}

func TestTempStorage_ConcurrentAccess(t *testing.T) {
	s := storage.NewTempStorage(time.Minute)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := storage.GenerateJobID()
			s.StoreJob(&domain.ExtractionJob{JobID: id, CreatedAt: time.Now()})
			s.UpdateJob(id, func(j *domain.ExtractionJob) { j.Status = domain.StatusCompleted })
			_ = s.GetJob(id)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}

func TestZeroBytes(t *testing.T) {
	b := []byte("%PDF-1.7 secret")
	storage.ZeroBytes(b)
	assert.Equal(t, make([]byte, len(b)), b)

	storage.ZeroBytes(nil)
}

func TestTempStorage_CloseIsIdempotent(t *testing.T) {
	s := storage.NewTempStorage(time.Millisecond * 10)
	s.Close()
	s.Close()
}
