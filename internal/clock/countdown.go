package clock

import (
	"sync"
	"time"
)

// Countdown decrements a remaining-seconds counter once per second until it
// reaches zero or is stopped. Each Countdown owns its own timer.
type Countdown struct {
	clock  Clock
	onTick func(remaining string)
	onDone func()

	mu        sync.Mutex
	remaining int
	timer     Timer
	stopped   bool
}

// StartCountdown starts counting down from an H:MM:SS value. onTick receives
// the remaining time after every decrement; onDone runs once zero is
// reached. Either callback may be nil.
func StartCountdown(clk Clock, from string, onTick func(string), onDone func()) (*Countdown, error) {
	seconds, err := TimeToSeconds(from)
	if err != nil {
		return nil, err
	}

	c := &Countdown{
		clock:     clk,
		onTick:    onTick,
		onDone:    onDone,
		remaining: seconds,
	}

	if seconds == 0 {
		c.stopped = true
		if onDone != nil {
			onDone()
		}
		return c, nil
	}

	c.mu.Lock()
	c.timer = clk.AfterFunc(time.Second, c.tick)
	c.mu.Unlock()
	return c, nil
}

func (c *Countdown) tick() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.remaining--
	remaining := c.remaining
	if remaining <= 0 {
		c.stopped = true
		c.timer = nil
	} else {
		c.timer = c.clock.AfterFunc(time.Second, c.tick)
	}
	c.mu.Unlock()

	if c.onTick != nil {
		s, _ := SecondsToTime(remaining)
		c.onTick(s)
	}
	if remaining <= 0 && c.onDone != nil {
		c.onDone()
	}
}

// Remaining returns the seconds left on the countdown.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Running reports whether the countdown is still ticking.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.stopped
}

// Stop cancels the countdown. It reports whether the countdown was running.
func (c *Countdown) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return false
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	return true
}

// CountdownSlot holds at most one active countdown. Starting a new one
// stops the previous one first. Slots are independent of each other, so a
// board can keep one slot per player clock.
type CountdownSlot struct {
	mu      sync.Mutex
	current *Countdown
}

// Start replaces the slot's countdown with a new one.
func (s *CountdownSlot) Start(clk Clock, from string, onTick func(string), onDone func()) (*Countdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.Stop()
		s.current = nil
	}

	c, err := StartCountdown(clk, from, onTick, onDone)
	if err != nil {
		return nil, err
	}
	s.current = c
	return c, nil
}

// Current returns the slot's countdown, or nil.
func (s *CountdownSlot) Current() *Countdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Stop stops the slot's countdown if there is one.
func (s *CountdownSlot) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.Stop()
		s.current = nil
	}
}
