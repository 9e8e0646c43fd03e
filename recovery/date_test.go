package recovery

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateRange_ClosedIntervalOverlap(t *testing.T) {
	mar := func(d int) Date { return NewDate(2026, time.March, d) }
	r := DateRange{Start: mar(10), End: mar(12)}

	// Shared boundary days count as overlap.
	assert.True(t, r.Overlaps(DateRange{Start: mar(12), End: mar(15)}))
	assert.True(t, r.Overlaps(DateRange{Start: mar(1), End: mar(10)}))
	// Containment in both directions.
	assert.True(t, r.Overlaps(DateRange{Start: mar(11), End: mar(11)}))
	assert.True(t, r.Overlaps(DateRange{Start: mar(1), End: mar(31)}))
	// Adjacent but disjoint.
	assert.False(t, r.Overlaps(DateRange{Start: mar(13), End: mar(15)}))
	assert.False(t, r.Overlaps(DateRange{Start: mar(1), End: mar(9)}))
}

func TestDate_ParseRejectsGarbage(t *testing.T) {
	_, err := ParseDate("2026-03-10")
	assert.NoError(t, err)

	for _, bad := range []string{"", "10/03/2026", "2026-13-40", "tomorrow"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, "should reject %q", bad)
	}
}

func TestKeyedMutex_SerializesPerKeyAndCleansUp(t *testing.T) {
	km := newKeyedMutex()

	var mu sync.Mutex
	counts := map[string]int{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "a"
			if i%2 == 0 {
				key = "b"
			}
			unlock := km.Lock(key)
			defer unlock()
			mu.Lock()
			counts[key]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, counts["a"])
	assert.Equal(t, 10, counts["b"])
	assert.Empty(t, km.locks, "released keys must be dropped from the map")
}
