package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type captureLogger struct {
	events []Event
}

func (c *captureLogger) Log(ev Event) {
	c.events = append(c.events, ev)
}

func TestMultiLoggerFansOut(t *testing.T) {
	a := &captureLogger{}
	b := &captureLogger{}
	m := NewMultiLogger(a, b, NoopLogger{})

	m.Log(Event{SessionID: "s1"})
	m.Log(Event{SessionID: "s2"})

	assert.Len(t, a.events, 2)
	assert.Len(t, b.events, 2)
	assert.Equal(t, "s1", a.events[0].SessionID)
	assert.Equal(t, "s2", b.events[1].SessionID)
}
