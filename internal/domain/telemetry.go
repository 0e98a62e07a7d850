package domain

// FieldGroup names one bundle of related telemetry components that is
// included or elided from a frame as a unit.
type FieldGroup string

const (
	GroupFace          FieldGroup = "face"
	GroupVoice         FieldGroup = "voice"
	GroupHead          FieldGroup = "head"
	GroupLeftUpperArm  FieldGroup = "left_upper_arm"
	GroupLeftLowerArm  FieldGroup = "left_lower_arm"
	GroupRightUpperArm FieldGroup = "right_upper_arm"
	GroupRightLowerArm FieldGroup = "right_lower_arm"
	GroupLeftHand      FieldGroup = "left_hand"
	GroupRightHand     FieldGroup = "right_hand"
)

// AlwaysSent reports whether the group bypasses change-detection. Facial
// and voice values are cheap and latency-sensitive for lip/voice sync, so
// they ride along in every frame.
func (g FieldGroup) AlwaysSent() bool {
	return g == GroupFace || g == GroupVoice
}

// GroupValues maps a component name (e.g. rotation axis or blendshape) to
// its current value.
type GroupValues map[string]float64

// TelemetryFrame is one motion/voice sample. Frames are never persisted;
// each one is superseded by the next.
type TelemetryFrame struct {
	CallID    CallID                     `json:"call_id"`
	From      IdentityID                 `json:"from"`
	Groups    map[FieldGroup]GroupValues `json:"groups"`
	Timestamp int64                      `json:"ts"`
}

// Clone copies the frame's group map so a caller can mutate the copy
// without aliasing the original.
func (f *TelemetryFrame) Clone() *TelemetryFrame {
	out := &TelemetryFrame{
		CallID:    f.CallID,
		From:      f.From,
		Timestamp: f.Timestamp,
		Groups:    make(map[FieldGroup]GroupValues, len(f.Groups)),
	}
	for g, vals := range f.Groups {
		cp := make(GroupValues, len(vals))
		for k, v := range vals {
			cp[k] = v
		}
		out.Groups[g] = cp
	}
	return out
}
