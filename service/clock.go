package service

import "time"

// commandClock is the time every book sees. It only moves when a command
// starts, never backwards, and replays the logged time on recovery.
type commandClock struct {
	now uint64
}

func (c *commandClock) Now() uint64 { return c.now }

func (c *commandClock) advance(t uint64) uint64 {
	if t > c.now {
		c.now = t
	}
	return c.now
}

func wallClock() uint64 {
	return uint64(time.Now().Unix())
}
