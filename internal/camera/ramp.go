package camera

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"visca-camera/internal/visca"
)

// Tier is the speed tier of the pan-tilt drive
type Tier int

const (
	TierSlow Tier = iota
	TierFast
)

func (t Tier) String() string {
	if t == TierFast {
		return "fast"
	}
	return "slow"
}

// speeds holds one pan and one tilt drive speed
type speeds struct {
	pan, tilt byte
}

// driveFunc sends a pan-tilt drive at the given speeds
type driveFunc func(dir visca.Direction, pan, tilt byte) error

// rampSession is one held direction waiting for the hold timer
type rampSession struct {
	dir visca.Direction
}

// speedRamp drives pan-tilt at the slow tier and, when a direction is held
// past the hold time, issues it once more at the fast tier.
type speedRamp struct {
	clock clock.Clock
	hold  time.Duration
	slow  speeds
	fast  speeds
	drive driveFunc

	mu      sync.Mutex
	session *rampSession
	timer   *clock.Timer
	tier    Tier
}

func newSpeedRamp(clk clock.Clock, hold time.Duration, slow, fast speeds, drive driveFunc) *speedRamp {
	if slow.pan == 0 {
		slow.pan = visca.DefaultPanSpeed
	}
	if slow.tilt == 0 {
		slow.tilt = visca.DefaultTiltSpeed
	}
	if fast.pan == 0 {
		fast.pan = visca.PanSpeedMax
	}
	if fast.tilt == 0 {
		fast.tilt = visca.TiltSpeedMax
	}
	return &speedRamp{
		clock: clk,
		hold:  hold,
		slow:  slow,
		fast:  fast,
		drive: drive,
	}
}

// Move starts driving in dir at slow speed, superseding any held direction.
// The hold timer is armed only once the slow drive has been accepted.
func (r *speedRamp) Move(dir visca.Direction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelLocked()
	r.tier = TierSlow

	if err := r.drive(dir, r.slow.pan, r.slow.tilt); err != nil {
		return err
	}

	if r.hold > 0 {
		s := &rampSession{dir: dir}
		r.session = s
		r.timer = r.clock.AfterFunc(r.hold, func() {
			r.expire(s)
		})
	}
	return nil
}

// Stop cancels any held direction and stops the drive at slow speed
func (r *speedRamp) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelLocked()
	r.tier = TierSlow
	return r.drive(visca.DirectionStop, r.slow.pan, r.slow.tilt)
}

// Cancel drops any held direction without sending anything
func (r *speedRamp) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelLocked()
	r.tier = TierSlow
}

// Tier returns the tier of the last drive
func (r *speedRamp) Tier() Tier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tier
}

// Held reports whether a direction is waiting for the hold timer
func (r *speedRamp) Held() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

func (r *speedRamp) cancelLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.session = nil
}

func (r *speedRamp) expire(s *rampSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// superseded or stopped after the timer fired
	if r.session != s {
		return
	}
	r.session = nil
	r.timer = nil
	r.tier = TierFast

	log.Debug().Stringer("dir", s.dir).Msg("camera: hold time reached, fast speed")
	if err := r.drive(s.dir, r.fast.pan, r.fast.tilt); err != nil {
		log.Warn().Err(err).Stringer("dir", s.dir).Msg("camera: fast drive not sent")
	}
}
