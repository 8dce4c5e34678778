package sdpbridge

import (
	"github.com/notedit/sdp/transform"
	"github.com/pion/sdp/v3"
)

const encryptExtensionUri = "urn:ietf:params:rtp-hdrext:encrypt"

// ParseSdp parses a session description into its sdp-transform object.
// transform.Parse skips whatever it cannot read, so the session grammar is
// checked with pion/sdp first.
func ParseSdp(data []byte) (*transform.SdpStruct, error) {
	sessionDescription := &sdp.SessionDescription{}

	if err := sessionDescription.Unmarshal(data); err != nil {
		return nil, err
	}

	return transform.Parse(string(data))
}

// FindMediaObject returns the first media section of the given kind, or nil
// when the SDP has none.
func FindMediaObject(sdpObject *transform.SdpStruct, kind MediaKind) *transform.MediaStruct {
	if sdpObject == nil {
		return nil
	}
	for _, m := range sdpObject.Media {
		if m != nil && m.Type == string(kind) {
			return m
		}
	}

	return nil
}
