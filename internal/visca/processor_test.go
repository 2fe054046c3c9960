package visca

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// line records frames written by a processor
type line struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (l *line) send(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.frames = append(l.frames, frame)
	return nil
}

func (l *line) sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.frames...)
}

var (
	ack        = []byte{0x90, 0x41, 0xFF}
	completion = []byte{0x90, 0x51, 0xFF}
)

func TestProcessorOneOutstanding(t *testing.T) {
	l := &line{}
	p := NewProcessor(l.send, WithClock(clock.NewMock()))

	require.NoError(t, p.Enqueue(PowerOn(1)))
	require.NoError(t, p.Enqueue(Mute(1, true)))

	// second command waits for the first to complete
	require.Len(t, l.sent(), 1)
	assert.Equal(t, PowerOn(1).Bytes(), l.sent()[0])

	p.ProcessIncomingData(ack)
	require.Len(t, l.sent(), 1, "ack alone must not release the line")

	p.ProcessIncomingData(completion)
	require.Len(t, l.sent(), 2)
	assert.Equal(t, Mute(1, true).Bytes(), l.sent()[1])
}

func TestProcessorCompletionCallback(t *testing.T) {
	l := &line{}
	p := NewProcessor(l.send, WithClock(clock.NewMock()))

	var completed []*Command
	cmd := PowerOn(1)
	cmd.OnComplete = func(c *Command) { completed = append(completed, c) }
	require.NoError(t, p.Enqueue(cmd))

	p.ProcessIncomingData(ack)
	assert.Empty(t, completed)

	p.ProcessIncomingData(completion)
	require.Len(t, completed, 1)
	assert.Same(t, cmd, completed[0])
}

func TestProcessorCallbackCanEnqueue(t *testing.T) {
	l := &line{}
	p := NewProcessor(l.send, WithClock(clock.NewMock()))

	inq := NewInquiry(1, PropertyPower)
	cmd := PowerOn(1)
	cmd.OnComplete = func(*Command) {
		require.NoError(t, p.Enqueue(inq))
	}
	require.NoError(t, p.Enqueue(cmd))
	p.ProcessIncomingData(append(append([]byte{}, ack...), completion...))

	frames := l.sent()
	require.Len(t, frames, 2)
	assert.Equal(t, inq.Bytes(), frames[1])
}

func TestProcessorInquiryAnswer(t *testing.T) {
	l := &line{}
	p := NewProcessor(l.send, WithClock(clock.NewMock()))

	var got []Reading
	inq := NewInquiry(1, PropertyZoomPosition)
	inq.OnReadings = func(r []Reading) { got = r }
	require.NoError(t, p.Enqueue(inq))

	// answer split across two reads
	p.ProcessIncomingData([]byte{0x90, 0x50, 0x01})
	assert.Nil(t, got)
	p.ProcessIncomingData([]byte{0x02, 0x03, 0x04, 0xFF})

	assert.Equal(t, []Reading{{PropertyZoomPosition, 0x1234}}, got)
	assert.Equal(t, uint64(1), p.Stats().Answers)
}

func TestProcessorInquiryNotQueuedTwice(t *testing.T) {
	l := &line{}
	p := NewProcessor(l.send, WithClock(clock.NewMock()))

	require.NoError(t, p.Enqueue(PowerOn(1)))
	inq := NewInquiry(1, PropertyPower)
	require.NoError(t, p.Enqueue(inq))
	require.NoError(t, p.Enqueue(inq))
	assert.Equal(t, 1, p.Stats().Queued)
}

func TestProcessorErrorReply(t *testing.T) {
	l := &line{}
	p := NewProcessor(l.send, WithClock(clock.NewMock()))

	var failure error
	cmd := MemoryRecall(1, 3)
	cmd.OnError = func(_ *Command, err error) { failure = err }
	cmd.OnComplete = func(*Command) { t.Fatal("completion after error") }
	require.NoError(t, p.Enqueue(cmd))
	require.NoError(t, p.Enqueue(ZoomStop(1)))

	p.ProcessIncomingData([]byte{0x90, 0x60, 0x02, 0xFF})

	var replyErr *ReplyError
	require.True(t, errors.As(failure, &replyErr))
	assert.Equal(t, ErrCodeSyntax, replyErr.Code)
	assert.Len(t, l.sent(), 2, "next command goes out after an error")
}

func TestProcessorReplyTimeout(t *testing.T) {
	mock := clock.NewMock()
	l := &line{}
	p := NewProcessor(l.send, WithClock(mock), WithReplyTimeout(time.Second))

	failed := make(chan error, 1)
	cmd := PowerOn(1)
	cmd.OnError = func(_ *Command, err error) { failed <- err }
	require.NoError(t, p.Enqueue(cmd))
	require.NoError(t, p.Enqueue(Mute(1, false)))

	mock.Add(999 * time.Millisecond)
	assert.Len(t, l.sent(), 1)

	mock.Add(time.Millisecond)
	select {
	case err := <-failed:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(time.Second):
		t.Fatal("timeout not reported")
	}
	require.Eventually(t, func() bool { return len(l.sent()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), p.Stats().Timeouts)
}

func TestProcessorAckExtendsTimeout(t *testing.T) {
	mock := clock.NewMock()
	l := &line{}
	p := NewProcessor(l.send, WithClock(mock),
		WithReplyTimeout(time.Second), WithCompletionTimeout(5*time.Second))

	completed := false
	cmd := MemoryRecall(1, 1)
	cmd.OnComplete = func(*Command) { completed = true }
	require.NoError(t, p.Enqueue(cmd))

	p.ProcessIncomingData(ack)
	mock.Add(3 * time.Second)
	p.ProcessIncomingData(completion)

	assert.True(t, completed)
	assert.Zero(t, p.Stats().Timeouts)
}

func TestProcessorSendFailure(t *testing.T) {
	l := &line{err: errors.New("port closed")}
	p := NewProcessor(l.send, WithClock(clock.NewMock()))

	var failure error
	cmd := PowerOn(1)
	cmd.OnError = func(_ *Command, err error) { failure = err }
	require.NoError(t, p.Enqueue(cmd))

	require.Error(t, failure)
	assert.Contains(t, failure.Error(), "port closed")
	assert.Zero(t, p.Stats().Queued)
}

func TestProcessorQueueFull(t *testing.T) {
	l := &line{}
	p := NewProcessor(l.send, WithClock(clock.NewMock()), WithCapacity(1))

	require.NoError(t, p.Enqueue(PowerOn(1))) // in flight
	require.NoError(t, p.Enqueue(Mute(1, true)))
	err := p.Enqueue(Mute(1, false))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestProcessorReset(t *testing.T) {
	l := &line{}
	p := NewProcessor(l.send, WithClock(clock.NewMock()))

	cmd := PowerOn(1)
	cmd.OnComplete = func(*Command) { t.Fatal("abandoned command completed") }
	require.NoError(t, p.Enqueue(cmd))
	require.NoError(t, p.Enqueue(Mute(1, true)))

	p.Reset()
	p.ProcessIncomingData(completion)

	assert.Zero(t, p.Stats().Queued)
	require.NoError(t, p.Enqueue(ZoomStop(1)))
	assert.Len(t, l.sent(), 2)
}

func TestProcessorDiscardsGarbage(t *testing.T) {
	l := &line{}
	p := NewProcessor(l.send, WithClock(clock.NewMock()))

	noise := make([]byte, maxFrame+1)
	p.ProcessIncomingData(noise)

	var got []Reading
	inq := NewInquiry(1, PropertyPower)
	inq.OnReadings = func(r []Reading) { got = r }
	require.NoError(t, p.Enqueue(inq))
	p.ProcessIncomingData([]byte{0x90, 0x50, 0x03, 0xFF})
	assert.Equal(t, []Reading{{PropertyPower, 0}}, got)
}

func TestProcessorIgnoresOtherCameras(t *testing.T) {
	l := &line{}
	p := NewProcessor(l.send, WithClock(clock.NewMock()))

	var completed int
	cmd := PowerOn(2)
	cmd.OnComplete = func(*Command) { completed++ }
	require.NoError(t, p.Enqueue(cmd))
	require.NoError(t, p.Enqueue(Mute(2, true)))

	// camera 1 on the same line completes its own command
	p.ProcessIncomingData([]byte{0x90, 0x41, 0xFF, 0x90, 0x51, 0xFF})
	assert.Zero(t, completed)
	assert.Len(t, l.sent(), 1)

	p.ProcessIncomingData([]byte{0xA0, 0x41, 0xFF, 0xA0, 0x51, 0xFF})
	assert.Equal(t, 1, completed)
	require.Len(t, l.sent(), 2)
	assert.Equal(t, Mute(2, true).Bytes(), l.sent()[1])
}

func TestReplyHeader(t *testing.T) {
	assert.Equal(t, byte(0x90), ReplyHeader(1))
	assert.Equal(t, byte(0xA0), ReplyHeader(2))
	assert.Equal(t, byte(0xF0), ReplyHeader(7))
}
