package explorer

import (
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/preview"
)

// screenScheduler delivers preview steps through the screen's event queue,
// so they run on the Run goroutine between key events.
type screenScheduler struct {
	s tcell.Screen
}

func (ss screenScheduler) AfterFunc(d time.Duration, f func()) preview.Timer {
	return time.AfterFunc(d, func() {
		_ = ss.s.PostEvent(tcell.NewEventInterrupt(f))
	})
}
