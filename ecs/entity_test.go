package ecs

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestEntityAllocator(t *testing.T) {
	t.Run("ids are valid and unique", func(t *testing.T) {
		var a entityAllocator
		e1, e2 := a.allocate(), a.allocate()

		assert.True(t, e1.IsValid())
		assert.True(t, e2.IsValid())
		assert.NotEqual(t, e1, e2)
		assert.Equal(t, uint32(0), e1.Index())
		assert.Equal(t, uint32(1), e2.Index())
		assert.Equal(t, 2, a.liveCount())
		assert.False(t, EntityId(0).IsValid())
	})

	t.Run("lowest free index is reused with a new serial", func(t *testing.T) {
		var a entityAllocator
		ids := make([]EntityId, 5)
		for i := range ids {
			ids[i] = a.allocate()
		}
		a.free(ids[3])
		a.free(ids[1])

		reused := a.allocate()
		assert.Equal(t, uint32(1), reused.Index())
		assert.NotEqual(t, ids[1].Serial(), reused.Serial())
		assert.False(t, a.exists(ids[1]), "stale id must not alias the new entity")
		assert.True(t, a.exists(reused))

		assert.Equal(t, uint32(3), a.allocate().Index())
		assert.Equal(t, uint32(5), a.allocate().Index())
	})

	t.Run("indices past the first word", func(t *testing.T) {
		var a entityAllocator
		ids := make([]EntityId, 130)
		for i := range ids {
			ids[i] = a.allocate()
		}
		a.free(ids[100])
		assert.Equal(t, uint32(100), a.allocate().Index())
		assert.Equal(t, uint32(130), a.allocate().Index())
	})

	t.Run("double free panics", func(t *testing.T) {
		var a entityAllocator
		e := a.allocate()
		a.free(e)
		assert.Panics(t, func() { a.free(e) })
	})

	t.Run("serial wraps around without issuing zero", func(t *testing.T) {
		var a entityAllocator
		a.nextSerial = math.MaxUint32 - 1

		e1 := a.allocate()
		e2 := a.allocate()
		assert.Equal(t, uint32(math.MaxUint32), e1.Serial())
		assert.Equal(t, uint32(1), e2.Serial())
		assert.True(t, e2.IsValid())
	})

	t.Run("reuse across the serial wrap never aliases a live id", func(t *testing.T) {
		var a entityAllocator
		a.nextSerial = math.MaxUint32 - 8
		keeper := a.allocate()

		issued := map[EntityId]bool{keeper: true}
		var stale []EntityId
		e := a.allocate()
		for range 20 {
			require.False(t, issued[e], "%s issued twice", e)
			issued[e] = true
			require.True(t, a.exists(e))
			require.True(t, a.exists(keeper))
			for _, old := range stale {
				require.False(t, a.exists(old), "stale %s aliases %s", old, e)
			}

			a.free(e)
			stale = append(stale, e)
			next := a.allocate()
			require.Equal(t, e.Index(), next.Index())
			e = next
		}
		assert.Less(t, e.Serial(), keeper.Serial(), "serial wrapped")
	})

	t.Run("concurrent allocation", func(t *testing.T) {
		var a entityAllocator
		const goroutines, perGoroutine = 8, 1000

		var mu sync.Mutex
		seen := make(map[EntityId]bool)
		var g errgroup.Group
		for range goroutines {
			g.Go(func() error {
				local := make([]EntityId, 0, perGoroutine)
				for range perGoroutine {
					local = append(local, a.allocate())
				}
				mu.Lock()
				defer mu.Unlock()
				for _, e := range local {
					seen[e] = true
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Len(t, seen, goroutines*perGoroutine)
		assert.Equal(t, goroutines*perGoroutine, a.liveCount())
	})
}

func TestEntityIdString(t *testing.T) {
	assert.Equal(t, "entity{7:3}", newEntityId(7, 3).String())
}
