package crdt

import (
	"encoding/hex"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClock(t *testing.T) {
	clock := NewClock()

	require.NotNil(t, clock)
	assert.Equal(t, uint64(0), clock.Current(), "New clock should start at zero")
	assert.Len(t, clock.SiteID(), SiteIDSize)
}

func TestNewClock_UniqueSiteIDs(t *testing.T) {
	a := NewClock()
	b := NewClock()

	assert.NotEqual(t, a.SiteID(), b.SiteID(), "Each clock should get a unique site_id")
}

func TestClock_Tick(t *testing.T) {
	clock := NewClock()

	assert.Equal(t, uint64(1), clock.Tick())
	assert.Equal(t, uint64(2), clock.Tick())
	assert.Equal(t, uint64(3), clock.Tick())
	assert.Equal(t, uint64(3), clock.Current())
}

func TestClock_Set(t *testing.T) {
	clock := NewClock()
	clock.Set(100)

	assert.Equal(t, uint64(100), clock.Current())
	assert.Equal(t, uint64(101), clock.Tick(), "Tick should continue from restored value")
}

func TestNewClockWithSiteID(t *testing.T) {
	siteID := []byte{0x01, 0x02, 0x03, 0x04}
	clock := NewClockWithSiteID(siteID)

	assert.Equal(t, siteID, clock.SiteID())
	assert.Equal(t, hex.EncodeToString(siteID), clock.SiteIDHex())

	// Часы владеют копией, мутация исходного слайса их не затрагивает
	siteID[0] = 0xff
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, clock.SiteID())
}

func TestClock_SiteID_ReturnsCopy(t *testing.T) {
	clock := NewClock()

	id := clock.SiteID()
	id[0] ^= 0xff

	assert.NotEqual(t, id, clock.SiteID())
}

func TestClock_Tick_Concurrent(t *testing.T) {
	clock := NewClock()

	const goroutines = 10
	const ticksPerGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < ticksPerGoroutine; j++ {
				clock.Tick()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(goroutines*ticksPerGoroutine), clock.Current())
}
