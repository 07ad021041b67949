package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestFake_NowAdvances(t *testing.T) {
	c := Fake(epoch)
	assert.Equal(t, epoch, c.Now())
	c.Advance(90 * time.Second)
	assert.Equal(t, epoch.Add(90*time.Second), c.Now())
}

func TestFake_AfterFiresAtDeadline(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(time.Minute)

	c.Advance(59 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(time.Minute), got)
	default:
		t.Fatal("did not fire")
	}
	assert.Equal(t, 0, c.PendingCount())
}

func TestFake_TickerRepeatsUntilStopped(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(10 * time.Second)

	for i := 0; i < 3; i++ {
		c.Advance(10 * time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}

	ticker.Stop()
	assert.Equal(t, 0, c.PendingCount())
	c.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("tick after stop")
	default:
	}
}

func TestFake_WaitForTimers(t *testing.T) {
	c := Fake(epoch)
	registered := make(chan struct{})
	go func() {
		c.NewTicker(time.Second)
		close(registered)
	}()

	c.WaitForTimers(1)
	<-registered
	require.Equal(t, 1, c.PendingCount())
}
