package telemetry

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/motion-planner/internal/planner"
)

// DecisionToStruct encodes d for the wire. Slope is present only when the
// lane branch computed one.
func DecisionToStruct(d planner.Decision) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"tick":        float64(d.Tick),
		"timestamp":   d.At.UTC().Format(time.RFC3339Nano),
		"branch":      string(d.Branch),
		"outcome":     string(d.Outcome),
		"steering":    d.Command.Steering,
		"left_speed":  d.Command.LeftSpeed,
		"right_speed": d.Command.RightSpeed,
		"lane_absent": d.LaneAbsent,
	}
	if d.Slope != nil {
		fields["slope"] = *d.Slope
	}
	return structpb.NewStruct(fields)
}

// DecisionFromStruct decodes a message produced by DecisionToStruct.
func DecisionFromStruct(s *structpb.Struct) (planner.Decision, error) {
	var d planner.Decision
	f := s.GetFields()

	num := func(key string) (float64, error) {
		v, ok := f[key]
		if !ok {
			return 0, fmt.Errorf("missing field %q", key)
		}
		if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
			return 0, fmt.Errorf("field %q is not a number", key)
		}
		return v.GetNumberValue(), nil
	}

	tick, err := num("tick")
	if err != nil {
		return d, err
	}
	steering, err := num("steering")
	if err != nil {
		return d, err
	}
	left, err := num("left_speed")
	if err != nil {
		return d, err
	}
	right, err := num("right_speed")
	if err != nil {
		return d, err
	}

	d.Tick = uint64(tick)
	d.Branch = planner.Branch(f["branch"].GetStringValue())
	d.Outcome = planner.Outcome(f["outcome"].GetStringValue())
	d.Command = planner.MotionCommand{Steering: int(steering), LeftSpeed: int(left), RightSpeed: int(right)}
	d.LaneAbsent = f["lane_absent"].GetBoolValue()
	if ts := f["timestamp"].GetStringValue(); ts != "" {
		at, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return d, fmt.Errorf("bad timestamp: %w", err)
		}
		d.At = at
	}
	if _, ok := f["slope"]; ok {
		slope, err := num("slope")
		if err != nil {
			return d, err
		}
		d.Slope = &slope
	}
	return d, nil
}

// branchFilter reads the optional "branches" list from a stream request.
// An empty filter passes everything.
func branchFilter(req *structpb.Struct) map[planner.Branch]bool {
	list := req.GetFields()["branches"].GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return nil
	}
	filter := make(map[planner.Branch]bool, len(list.GetValues()))
	for _, v := range list.GetValues() {
		filter[planner.Branch(v.GetStringValue())] = true
	}
	return filter
}

// StreamRequest builds a request limited to branches, or every branch when
// none are given.
func StreamRequest(branches ...planner.Branch) (*structpb.Struct, error) {
	if len(branches) == 0 {
		return &structpb.Struct{}, nil
	}
	list := make([]interface{}, len(branches))
	for i, b := range branches {
		list[i] = string(b)
	}
	return structpb.NewStruct(map[string]interface{}{"branches": list})
}
