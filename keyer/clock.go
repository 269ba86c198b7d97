package keyer

import "time"

// Clock records the most recent press or release and answers elapsed-time
// queries against a caller supplied "now". At most one of the two timestamps
// is set at any time; both are unset until the first press.
type Clock struct {
	pressAt    time.Time
	releaseAt  time.Time
	pressSet   bool
	releaseSet bool
}

// RecordPress stores the press time and clears any release time.
func (c *Clock) RecordPress(now time.Time) {
	c.pressAt, c.pressSet = now, true
	c.releaseAt, c.releaseSet = time.Time{}, false
}

// RecordRelease stores the release time and clears any press time.
func (c *Clock) RecordRelease(now time.Time) {
	c.releaseAt, c.releaseSet = now, true
	c.pressAt, c.pressSet = time.Time{}, false
}

// Reset clears both timestamps.
func (c *Clock) Reset() {
	*c = Clock{}
}

// SincePress returns the whole milliseconds elapsed since the recorded press.
// ok is false when no press is recorded.
func (c *Clock) SincePress(now time.Time) (time.Duration, bool) {
	if !c.pressSet {
		return 0, false
	}
	return floorMillis(now.Sub(c.pressAt)), true
}

// SinceRelease returns the whole milliseconds elapsed since the recorded
// release. ok is false when no release is recorded.
func (c *Clock) SinceRelease(now time.Time) (time.Duration, bool) {
	if !c.releaseSet {
		return 0, false
	}
	return floorMillis(now.Sub(c.releaseAt)), true
}

// ReleasedAt returns the recorded release time, if any.
func (c *Clock) ReleasedAt() (time.Time, bool) {
	return c.releaseAt, c.releaseSet
}

// PressedAt returns the recorded press time, if any.
func (c *Clock) PressedAt() (time.Time, bool) {
	return c.pressAt, c.pressSet
}

func floorMillis(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Truncate(time.Millisecond)
}
