package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ovenlight/expeditor/core/model"
	"github.com/ovenlight/expeditor/infra/logger"
)

type fakeAckSink struct {
	advanced []string
	states   []model.AssignmentState
	err      error
}

func (f *fakeAckSink) Advance(_ context.Context, id string, target model.AssignmentState) error {
	if f.err != nil {
		return f.err
	}
	f.advanced = append(f.advanced, id)
	f.states = append(f.states, target)
	return nil
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newAckClient(acks AckSink) *PahoClient {
	return &PahoClient{
		cfg:     Config{TopicPrefix: "expeditor"},
		log:     logger.NopLogger{},
		acks:    acks,
		timeout: time.Second,
	}
}

func TestOnAck_AppliesTransition(t *testing.T) {
	sink := &fakeAckSink{}
	c := newAckClient(sink)

	c.onAck(nil, fakeMessage{
		topic:   "expeditor/kitchen/grill/ack",
		payload: []byte(`{"assignment_id":"a1","state":"preparing"}`),
	})
	if len(sink.advanced) != 1 || sink.advanced[0] != "a1" {
		t.Fatalf("ack not applied: %+v", sink.advanced)
	}
	if sink.states[0] != model.AssignmentPreparing {
		t.Fatalf("expected preparing, got %s", sink.states[0])
	}
}

func TestOnAck_MalformedPayloadIgnored(t *testing.T) {
	sink := &fakeAckSink{}
	c := newAckClient(sink)

	c.onAck(nil, fakeMessage{topic: "expeditor/kitchen/grill/ack", payload: []byte("{broken")})
	c.onAck(nil, fakeMessage{
		topic:   "expeditor/kitchen/grill/ack",
		payload: []byte(`{"assignment_id":"a1","state":"levitating"}`),
	})
	if len(sink.advanced) != 0 {
		t.Fatalf("malformed acks must be dropped, applied %v", sink.advanced)
	}
}

func TestOnAck_RejectionIsNotFatal(t *testing.T) {
	sink := &fakeAckSink{err: errors.New("invalid transition")}
	c := newAckClient(sink)

	// Must not panic; the rejection is logged and the message dropped.
	c.onAck(nil, fakeMessage{
		topic:   "expeditor/kitchen/grill/ack",
		payload: []byte(`{"assignment_id":"a1","state":"completed"}`),
	})
}
