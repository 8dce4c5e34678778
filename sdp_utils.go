package sdpbridge

import (
	"strconv"

	"github.com/notedit/sdp/transform"
)

// ExtractRtpCapabilities collects the codecs and header extensions declared in
// the first audio and the first video media sections. Codecs keep the payload
// type given by the SDP as PreferredPayloadType.
func ExtractRtpCapabilities(sdpObject *transform.SdpStruct) RtpCapabilities {
	// Codecs by payload type, in the order they are first declared.
	var payloadTypes []byte
	codecsMap := make(map[byte]*RtpCodecCapability)
	headerExtensions := []*RtpHeaderExtension{}
	gotAudio, gotVideo := false, false

	var media []*transform.MediaStruct
	if sdpObject != nil {
		media = sdpObject.Media
	}

	for _, m := range media {
		if m == nil {
			continue
		}
		kind := MediaKind(m.Type)

		switch kind {
		case MediaKind_Audio:
			if gotAudio {
				continue
			}
			gotAudio = true

		case MediaKind_Video:
			if gotVideo {
				continue
			}
			gotVideo = true

		default:
			continue
		}

		// Payload types mapped by this section.
		sectionPayloads := make(map[byte]bool)

		for _, rtp := range m.Rtp {
			if rtp.Payload < 0 || rtp.Payload > 127 {
				continue
			}
			payload := byte(rtp.Payload)
			codec := &RtpCodecCapability{
				Kind:                 kind,
				MimeType:             string(kind) + "/" + rtp.Codec,
				PreferredPayloadType: payload,
				ClockRate:            rtp.Rate,
				Channels:             rtp.Encoding,
				RtcpFeedback:         []RtcpFeedback{},
			}
			if _, ok := codecsMap[payload]; !ok {
				payloadTypes = append(payloadTypes, payload)
			}
			codecsMap[payload] = codec
			sectionPayloads[payload] = true
		}

		// Get codec parameters.
		for _, fmtp := range m.Fmtp {
			if fmtp.Payload < 0 || fmtp.Payload > 127 {
				continue
			}
			codec, ok := codecsMap[byte(fmtp.Payload)]
			if !ok {
				continue
			}
			codec.Parameters = newRtpCodecSpecificParameters(transform.ParseParams(fmtp.Config))
		}

		// Get RTCP feedback for each codec.
		for _, fb := range m.RtcpFb {
			if fb.Payload < 0 || fb.Payload > 127 {
				continue
			}
			feedback := RtcpFeedback{
				Type:      fb.Type,
				Parameter: fb.Subtype,
			}

			// transform reads the "*" payload as 0. It is a wildcard unless
			// the section maps the static payload type 0.
			if fb.Payload != 0 || sectionPayloads[0] {
				codec, ok := codecsMap[byte(fb.Payload)]
				if !ok {
					continue
				}
				codec.RtcpFeedback = append(codec.RtcpFeedback, feedback)
				continue
			}

			// Wildcard feedback applies to every media codec of this kind.
			for _, pt := range payloadTypes {
				codec := codecsMap[pt]
				if codec.Kind == kind && !codec.isRtxCodec() {
					codec.RtcpFeedback = append(codec.RtcpFeedback, feedback)
				}
			}
		}

		// Get RTP header extensions.
		for _, ext := range m.Ext {
			// Ignore encrypted extensions.
			if ext.Uri == encryptExtensionUri {
				continue
			}
			headerExtensions = append(headerExtensions, &RtpHeaderExtension{
				Kind:        kind,
				Uri:         ext.Uri,
				PreferredId: ext.Value,
			})
		}
	}

	codecs := make([]*RtpCodecCapability, 0, len(payloadTypes))
	for _, pt := range payloadTypes {
		codecs = append(codecs, codecsMap[pt])
	}

	return RtpCapabilities{
		Codecs:           codecs,
		HeaderExtensions: headerExtensions,
	}
}

// GetCname returns the cname of the first a=ssrc:<ssrc> cname:<value> line of
// the media section, or an empty string.
func GetCname(offerMediaObject *transform.MediaStruct) string {
	if offerMediaObject == nil {
		return ""
	}
	for _, line := range offerMediaObject.Ssrcs {
		if line.Attribute == "cname" {
			return line.Value
		}
	}

	return ""
}

// GetRtpEncodings derives one encoding per media SSRC of the section. SSRCs
// paired by an a=ssrc-group:FID line become the RTX stream of their encoding.
func GetRtpEncodings(offerMediaObject *transform.MediaStruct) ([]RtpEncodingParameters, error) {
	var ssrcs []uint32
	seen := make(map[uint32]bool)

	if offerMediaObject != nil {
		for _, line := range offerMediaObject.Ssrcs {
			ssrc := uint32(line.Id)
			if !seen[ssrc] {
				seen[ssrc] = true
				ssrcs = append(ssrcs, ssrc)
			}
		}
	}

	if len(ssrcs) == 0 {
		return nil, NewTypeError("no a=ssrc lines found")
	}

	type ssrcPair struct {
		ssrc, rtxSsrc uint32
	}
	var pairs []ssrcPair

	// First assume RTX is used.
	for _, line := range offerMediaObject.SsrcGroups {
		if line.Semantics != "FID" {
			continue
		}
		fidSsrcs := transform.ParsePayloads(line.Ssrcs)
		if len(fidSsrcs) < 2 || fidSsrcs[0] <= 0 || fidSsrcs[1] <= 0 {
			continue
		}
		ssrc, rtxSsrc := uint32(fidSsrcs[0]), uint32(fidSsrcs[1])

		if seen[ssrc] {
			delete(seen, ssrc)
			delete(seen, rtxSsrc)
			pairs = append(pairs, ssrcPair{ssrc, rtxSsrc})
		}
	}

	// Remaining SSRCs are media streams without RTX.
	for _, ssrc := range ssrcs {
		if seen[ssrc] {
			pairs = append(pairs, ssrcPair{ssrc: ssrc})
		}
	}

	encodings := make([]RtpEncodingParameters, 0, len(pairs))
	for _, pair := range pairs {
		encoding := RtpEncodingParameters{
			Ssrc: pair.ssrc,
		}
		if pair.rtxSsrc > 0 {
			encoding.Rtx = &RtpEncodingRtx{
				Ssrc: pair.rtxSsrc,
			}
		}
		encodings = append(encodings, encoding)
	}

	return encodings, nil
}

func newRtpCodecSpecificParameters(params map[string]string) (p RtpCodecSpecificParameters) {
	parseUint := func(key string, bitSize int) (uint64, bool) {
		value, ok := params[key]
		if !ok {
			return 0, false
		}
		n, err := strconv.ParseUint(value, 10, bitSize)
		return n, err == nil
	}

	// H264
	if v, ok := parseUint("packetization-mode", 8); ok {
		p.PacketizationMode = int(v)
	}
	if v, ok := parseUint("level-asymmetry-allowed", 8); ok {
		p.LevelAsymmetryAllowed = int(v)
	}
	p.ProfileLevelId = params["profile-level-id"]

	// VP9
	if v, ok := parseUint("profile-id", 8); ok {
		p.ProfileId = ref(uint8(v))
	}

	// RTX
	if v, ok := parseUint("apt", 8); ok {
		p.Apt = uint8(v)
	}

	// OPUS
	if v, ok := parseUint("sprop-stereo", 8); ok {
		p.SpropStereo = uint8(v)
	}
	if v, ok := parseUint("stereo", 8); ok {
		p.Stereo = uint8(v)
	}
	if v, ok := parseUint("useinbandfec", 8); ok {
		p.Useinbandfec = uint8(v)
	}
	if v, ok := parseUint("usedtx", 8); ok {
		p.Usedtx = uint8(v)
	}
	if v, ok := parseUint("maxplaybackrate", 32); ok {
		p.Maxplaybackrate = uint32(v)
	}
	if v, ok := parseUint("minptime", 8); ok {
		p.Minptime = uint8(v)
	}
	p.ChannelMapping = params["channel_mapping"]
	if v, ok := parseUint("num_streams", 8); ok {
		p.NumStreams = uint8(v)
	}
	if v, ok := parseUint("coupled_streams", 8); ok {
		p.CoupledStreams = uint8(v)
	}

	if v, ok := parseUint("x-google-min-bitrate", 32); ok {
		p.XGoogleMinBitrate = uint32(v)
	}
	if v, ok := parseUint("x-google-max-bitrate", 32); ok {
		p.XGoogleMaxBitrate = uint32(v)
	}
	if v, ok := parseUint("x-google-start-bitrate", 32); ok {
		p.XGoogleStartBitrate = uint32(v)
	}

	return
}
