package camera

import (
	"github.com/rs/zerolog/log"

	"visca-camera/internal/visca"
)

// enqueuer is the part of the processor the synchronizer needs
type enqueuer interface {
	Enqueue(cmd *visca.Command) error
}

// synchronizer keeps State in step with the camera. Every mutating command
// that completes is followed by the inquiry for the property it changed, and
// every inquiry answer is written to State.
type synchronizer struct {
	queue     enqueuer
	state     *State
	inquiries map[visca.Property]*visca.Command
	polled    []*visca.Command
}

// newSynchronizer builds one inquiry per property. pollNames picks the
// inquiries sent by poll; empty means all of them.
func newSynchronizer(addr int, q enqueuer, state *State, pollNames []string) *synchronizer {
	s := &synchronizer{
		queue:     q,
		state:     state,
		inquiries: make(map[visca.Property]*visca.Command),
	}

	all := visca.InquiryProperties()
	for _, p := range all {
		inq := visca.NewInquiry(addr, p)
		inq.OnReadings = s.onReadings
		s.inquiries[p] = inq
	}

	if len(pollNames) == 0 {
		for _, p := range all {
			s.polled = append(s.polled, s.inquiries[p])
		}
		return s
	}

	for _, name := range pollNames {
		inq, ok := s.inquiries[visca.Property(name)]
		if !ok {
			log.Warn().Str("name", name).Msg("camera: unknown poll inquiry, skipping")
			continue
		}
		s.polled = append(s.polled, inq)
	}
	return s
}

func (s *synchronizer) onReadings(readings []visca.Reading) {
	for _, r := range readings {
		s.state.Set(r.Property, r.Value)
	}
}

// onMutationComplete runs when the camera reports cmd done. Commands that
// affect no property with an inquiry are ignored.
func (s *synchronizer) onMutationComplete(cmd *visca.Command) {
	for _, r := range cmd.Expected {
		s.state.Set(r.Property, r.Value)
	}
	if cmd.Affects == visca.PropertyNone {
		return
	}
	s.refresh(cmd.Affects)
}

// refresh enqueues the inquiry for p
func (s *synchronizer) refresh(p visca.Property) {
	inq, ok := s.inquiries[p]
	if !ok {
		return
	}
	if err := s.queue.Enqueue(inq); err != nil {
		log.Warn().Err(err).Str("property", string(p)).Msg("camera: refresh not queued")
	}
}

// poll enqueues the configured poll inquiries
func (s *synchronizer) poll() {
	for _, inq := range s.polled {
		if err := s.queue.Enqueue(inq); err != nil {
			log.Warn().Err(err).Str("inquiry", inq.Name).Msg("camera: poll not queued")
			return
		}
	}
}

// pollList names the inquiries sent by poll, in order
func (s *synchronizer) pollList() []visca.Property {
	out := make([]visca.Property, 0, len(s.polled))
	for _, inq := range s.polled {
		out = append(out, inq.Affects)
	}
	return out
}
