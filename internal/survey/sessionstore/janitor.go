package sessionstore

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Janitor sweeps expired sessions out of a Memory store on an interval.
// The Redis store expires keys natively and needs none of this.
type Janitor struct {
	store    *Memory
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewJanitor starts a background sweep over the store. Call Stop to shut it
// down; Stop blocks until the sweep goroutine has exited.
func NewJanitor(store *Memory, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	j := &Janitor{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *Janitor) run() {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := j.store.sweep(); n > 0 {
				log.Debug().Int("expired", n).Msg("Swept survey sessions")
			}
		case <-j.stop:
			return
		}
	}
}

// Stop terminates the sweep goroutine and waits for it to exit.
func (j *Janitor) Stop() {
	close(j.stop)
	<-j.done
}
