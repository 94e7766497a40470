package actuator

import (
	"context"
	"fmt"

	"github.com/banshee-data/motion-planner/internal/gateway"
	"github.com/banshee-data/motion-planner/internal/planner"
	"github.com/banshee-data/motion-planner/internal/serialmux"
)

// SerialSink writes commands to the motor controller as topic envelopes.
type SerialSink struct {
	mux   serialmux.SerialMuxInterface
	topic string
}

func NewSerialSink(mux serialmux.SerialMuxInterface, topic string) *SerialSink {
	return &SerialSink{mux: mux, topic: topic}
}

// EncodeCommand frames cmd the way SerialSink writes it.
func EncodeCommand(topic string, cmd planner.MotionCommand) (string, error) {
	b, err := gateway.EncodeEnvelope(topic, cmd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *SerialSink) Emit(_ context.Context, d planner.Decision) error {
	return s.send(d.Command)
}

// Stop commands zero steering and zero speed, for use on shutdown.
func (s *SerialSink) Stop() error {
	return s.send(planner.MotionCommand{})
}

func (s *SerialSink) send(cmd planner.MotionCommand) error {
	line, err := EncodeCommand(s.topic, cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if err := s.mux.SendCommand(line); err != nil {
		return fmt.Errorf("send command on %s: %w", s.topic, err)
	}
	return nil
}
