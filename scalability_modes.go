package sdpbridge

import (
	"fmt"
	"regexp"
	"strconv"
)

var scalabilityModeRegex = regexp.MustCompile(`^[LS]([1-9]\d{0,1})T([1-9]\d{0,1})(_KEY)?`)

// ScalabilityMode is the layer structure named by a webrtc-svc scalability
// mode such as "L1T3".
type ScalabilityMode struct {
	SpatialLayers  int  `json:"spatialLayers,omitempty"`
	TemporalLayers int  `json:"temporalLayers,omitempty"`
	Ksvc           bool `json:"ksvc,omitempty"`
}

// ParseScalabilityMode reads the layers of a mode name. Names it does not
// recognise give a single spatial and temporal layer.
func ParseScalabilityMode(scalabilityMode string) ScalabilityMode {
	match := scalabilityModeRegex.FindStringSubmatch(scalabilityMode)
	if len(match) != 4 {
		return ScalabilityMode{
			SpatialLayers:  1,
			TemporalLayers: 1,
		}
	}

	spatialLayers, _ := strconv.Atoi(match[1])
	temporalLayers, _ := strconv.Atoi(match[2])

	return ScalabilityMode{
		SpatialLayers:  spatialLayers,
		TemporalLayers: temporalLayers,
		Ksvc:           len(match[3]) > 0,
	}
}

// String returns the webrtc-svc name of the mode, e.g. "L1T3" or "L3T3_KEY".
func (m ScalabilityMode) String() string {
	spatialLayers, temporalLayers := m.SpatialLayers, m.TemporalLayers
	if spatialLayers < 1 {
		spatialLayers = 1
	}
	if temporalLayers < 1 {
		temporalLayers = 1
	}
	mode := fmt.Sprintf("L%dT%d", spatialLayers, temporalLayers)
	if m.Ksvc {
		mode += "_KEY"
	}
	return mode
}
