package scraper

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Counter is one success/fail pair. Increments are atomic; reads feed
// progress logging only.
type Counter struct {
	success atomic.Int64
	fail    atomic.Int64
}

func (c *Counter) Success() { c.success.Add(1) }
func (c *Counter) Fail()    { c.fail.Add(1) }

func (c *Counter) Successes() int64 { return c.success.Load() }
func (c *Counter) Failures() int64  { return c.fail.Load() }
func (c *Counter) Total() int64     { return c.success.Load() + c.fail.Load() }

// Status carries the run counters. Values never decrease.
type Status struct {
	Articles Counter
	Files    Counter
}

// logProgress emits the "[k/N] [p%]" line for one phase.
func logProgress(phase string, done, total int64) {
	if total == 0 {
		return
	}
	percent := done * 100 / total
	log.Info().Msg(fmt.Sprintf("[%d/%d] [%d%%] %s", done, total, percent, phase))
}
