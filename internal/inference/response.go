package inference

import "github.com/oszuidwest/drowsiguard/internal/types"

// detectResponse is the JSON body returned by the detect endpoint.
type detectResponse struct {
	Detections []types.Detection `json:"detections"`
	Signals    detectSignals     `json:"signals"`
}

// detectSignals are the per-class booleans. The service reports eye closure
// under several class names depending on the model build.
type detectSignals struct {
	EyeClosed bool `json:"eye_closed"`
	Closed    bool `json:"closed"`
	Close     bool `json:"close"`
	Yawn      bool `json:"yawn"`
	Asleep    bool `json:"asleep"`
	Tired     bool `json:"tired"`
	Awake     bool `json:"awake"`
}

func (r detectResponse) toFrame() types.DetectionFrame {
	s := r.Signals
	return types.DetectionFrame{
		EyesClosed: s.EyeClosed || s.Closed || s.Close,
		Yawn:       s.Yawn,
		HeadNod:    s.Asleep,
		Tired:      s.Tired,
		Awake:      s.Awake,
		Detections: r.Detections,
	}
}
