package sdpbridge

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jiyeyuran/mediasoup-sdp-bridge/h264"
)

// supportedRtpCapabilities lists every codec and header extension the local
// endpoint is able to handle. Codecs without PreferredPayloadType get a dynamic
// one assigned by GenerateLocalRtpCapabilities.
var supportedRtpCapabilities = RtpCapabilities{
	Codecs: []*RtpCodecCapability{
		{
			Kind:      "audio",
			MimeType:  "audio/opus",
			ClockRate: 48000,
			Channels:  2,
			RtcpFeedback: []RtcpFeedback{
				{Type: "transport-cc"},
			},
		},
		{
			Kind:                 "audio",
			MimeType:             "audio/PCMU",
			PreferredPayloadType: 0,
			ClockRate:            8000,
			RtcpFeedback: []RtcpFeedback{
				{Type: "transport-cc"},
			},
		},
		{
			Kind:                 "audio",
			MimeType:             "audio/PCMA",
			PreferredPayloadType: 8,
			ClockRate:            8000,
			RtcpFeedback: []RtcpFeedback{
				{Type: "transport-cc"},
			},
		},
		{
			Kind:                 "audio",
			MimeType:             "audio/G722",
			PreferredPayloadType: 9,
			ClockRate:            8000,
			RtcpFeedback: []RtcpFeedback{
				{Type: "transport-cc"},
			},
		},
		{
			Kind:      "audio",
			MimeType:  "audio/iLBC",
			ClockRate: 8000,
			RtcpFeedback: []RtcpFeedback{
				{Type: "transport-cc"},
			},
		},
		{
			Kind:                 "audio",
			MimeType:             "audio/CN",
			PreferredPayloadType: 13,
			ClockRate:            32000,
		},
		{
			Kind:                 "audio",
			MimeType:             "audio/CN",
			PreferredPayloadType: 13,
			ClockRate:            16000,
		},
		{
			Kind:                 "audio",
			MimeType:             "audio/CN",
			PreferredPayloadType: 13,
			ClockRate:            8000,
		},
		{
			Kind:      "audio",
			MimeType:  "audio/telephone-event",
			ClockRate: 48000,
		},
		{
			Kind:      "audio",
			MimeType:  "audio/telephone-event",
			ClockRate: 32000,
		},

		{
			Kind:      "audio",
			MimeType:  "audio/telephone-event",
			ClockRate: 16000,
		},
		{
			Kind:      "audio",
			MimeType:  "audio/telephone-event",
			ClockRate: 8000,
		},
		{
			Kind:      "video",
			MimeType:  "video/VP8",
			ClockRate: 90000,
			RtcpFeedback: []RtcpFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "goog-remb"},
				{Type: "transport-cc"},
			},
		},
		{
			Kind:      "video",
			MimeType:  "video/VP9",
			ClockRate: 90000,
			RtcpFeedback: []RtcpFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "goog-remb"},
				{Type: "transport-cc"},
			},
		},
		{
			Kind:      "video",
			MimeType:  "video/H264",
			ClockRate: 90000,
			Parameters: RtpCodecSpecificParameters{
				RtpParameter: h264.RtpParameter{
					PacketizationMode:     1,
					LevelAsymmetryAllowed: 1,
				},
			},
			RtcpFeedback: []RtcpFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "goog-remb"},
				{Type: "transport-cc"},
			},
		},
		{
			Kind:      "video",
			MimeType:  "video/H264",
			ClockRate: 90000,
			Parameters: RtpCodecSpecificParameters{
				RtpParameter: h264.RtpParameter{
					PacketizationMode:     0,
					LevelAsymmetryAllowed: 1,
				},
			},
			RtcpFeedback: []RtcpFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "goog-remb"},
				{Type: "transport-cc"},
			},
		},
		{
			Kind:      "video",
			MimeType:  "video/H265",
			ClockRate: 90000,
			Parameters: RtpCodecSpecificParameters{
				RtpParameter: h264.RtpParameter{
					PacketizationMode:     1,
					LevelAsymmetryAllowed: 1,
				},
			},
			RtcpFeedback: []RtcpFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "goog-remb"},
				{Type: "transport-cc"},
			},
		},
		{
			Kind:      "video",
			MimeType:  "video/H265",
			ClockRate: 90000,
			Parameters: RtpCodecSpecificParameters{
				RtpParameter: h264.RtpParameter{
					PacketizationMode:     0,
					LevelAsymmetryAllowed: 1,
				},
			},
			RtcpFeedback: []RtcpFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "goog-remb"},
				{Type: "transport-cc"},
			},
		},
	},
	HeaderExtensions: []*RtpHeaderExtension{
		{
			Kind:             "audio",
			Uri:              "urn:ietf:params:rtp-hdrext:sdes:mid",
			PreferredId:      1,
			PreferredEncrypt: false,
			Direction:        Direction_Sendrecv,
		},
		{
			Kind:             "video",
			Uri:              "urn:ietf:params:rtp-hdrext:sdes:mid",
			PreferredId:      1,
			PreferredEncrypt: false,
			Direction:        Direction_Sendrecv,
		},
		{
			Kind:             "video",
			Uri:              "urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id",
			PreferredId:      2,
			PreferredEncrypt: false,
			Direction:        Direction_Recvonly,
		},
		{
			Kind:             "video",
			Uri:              "urn:ietf:params:rtp-hdrext:sdes:repaired-rtp-stream-id",
			PreferredId:      3,
			PreferredEncrypt: false,
			Direction:        Direction_Recvonly,
		},
		{
			Kind:             "audio",
			Uri:              "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time",
			PreferredId:      4,
			PreferredEncrypt: false,
			Direction:        Direction_Sendrecv,
		},
		{
			Kind:             "video",
			Uri:              "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time",
			PreferredId:      4,
			PreferredEncrypt: false,
			Direction:        Direction_Sendrecv,
		},
		// NOTE: For audio we just enable transport-wide-cc-01 when receiving media.
		{
			Kind:             "audio",
			Uri:              "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01",
			PreferredId:      5,
			PreferredEncrypt: false,
			Direction:        Direction_Recvonly,
		},
		{
			Kind:             "video",
			Uri:              "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01",
			PreferredId:      5,
			PreferredEncrypt: false,
			Direction:        Direction_Sendrecv,
		},
		{
			Kind:             "video",
			Uri:              "urn:ietf:params:rtp-hdrext:framemarking",
			PreferredId:      7,
			PreferredEncrypt: false,
			Direction:        Direction_Sendrecv,
		},
		{
			Kind:             "audio",
			Uri:              "urn:ietf:params:rtp-hdrext:ssrc-audio-level",
			PreferredId:      10,
			PreferredEncrypt: false,
			Direction:        Direction_Sendrecv,
		},
		{
			Kind:             "video",
			Uri:              "urn:3gpp:video-orientation",
			PreferredId:      11,
			PreferredEncrypt: false,
			Direction:        Direction_Sendrecv,
		},
		{
			Kind:             "video",
			Uri:              "urn:ietf:params:rtp-hdrext:toffset",
			PreferredId:      12,
			PreferredEncrypt: false,
			Direction:        Direction_Sendrecv,
		},
	},
}

func init() {
	if err := ValidateRtpCapabilities(&supportedRtpCapabilities); err != nil {
		panic(err)
	}
}

// GetSupportedRtpCapabilities returns a copy of the supported RTP capabilities.
func GetSupportedRtpCapabilities() (rtpCapabilities RtpCapabilities) {
	clone(supportedRtpCapabilities, &rtpCapabilities)

	return
}

/**
 * Generate the local RTP capabilities based on the given media codecs and
 * the supported RTP capabilities. Every media codec gets a payload type (its
 * own preferred one or the next free dynamic one) and video codecs get a RTX
 * companion.
 */
func GenerateLocalRtpCapabilities(mediaCodecs []*RtpCodecCapability) (caps RtpCapabilities, err error) {
	if len(mediaCodecs) == 0 {
		err = NewTypeError("mediaCodecs must be an Array")
		return
	}

	clonedSupportedRtpCapabilities := GetSupportedRtpCapabilities()
	supportedCodecs := clonedSupportedRtpCapabilities.Codecs

	caps.HeaderExtensions = clonedSupportedRtpCapabilities.HeaderExtensions

	dynamicPayloadTypes := make([]byte, len(DYNAMIC_PAYLOAD_TYPES))
	copy(dynamicPayloadTypes, DYNAMIC_PAYLOAD_TYPES[:])

	for _, mediaCodec := range mediaCodecs {
		if err = validateRtpCodecCapability(mediaCodec); err != nil {
			return
		}

		var matchedSupportedCodec *RtpCodecCapability
		for _, supportedCodec := range supportedCodecs {
			if matchCodecs(mediaCodec, supportedCodec, matchOptions{}) {
				matchedSupportedCodec = supportedCodec
				break
			}
		}

		if matchedSupportedCodec == nil {
			err = NewTypeError("media codec not supported [mimeType:%s]", mediaCodec.MimeType)
			return
		}
		codec := &RtpCodecCapability{}

		if err = clone(matchedSupportedCodec, codec); err != nil {
			return
		}

		if mediaCodec.PreferredPayloadType > 0 {
			codec.PreferredPayloadType = mediaCodec.PreferredPayloadType

			idx := bytes.IndexByte(dynamicPayloadTypes, codec.PreferredPayloadType)

			if idx > -1 {
				dynamicPayloadTypes = append(dynamicPayloadTypes[:idx], dynamicPayloadTypes[idx+1:]...)
			}
		} else if codec.PreferredPayloadType == 0 && !strings.EqualFold(codec.MimeType, "audio/PCMU") {
			if len(dynamicPayloadTypes) == 0 {
				err = NewTypeError("cannot allocate more dynamic codec payload types")
				return
			}
			codec.PreferredPayloadType = dynamicPayloadTypes[0]
			dynamicPayloadTypes = dynamicPayloadTypes[1:]
		}

		for _, capCodec := range caps.Codecs {
			if capCodec.PreferredPayloadType == codec.PreferredPayloadType {
				err = NewTypeError("duplicated codec.preferredPayloadType")
				return
			}
		}

		// Merge the media codec parameters.
		if err = override(&codec.Parameters, mediaCodec.Parameters); err != nil {
			return
		}

		// Append to the codec list.
		caps.Codecs = append(caps.Codecs, codec)

		// Add a RTX video codec if video.
		if codec.Kind == MediaKind_Video {
			if len(dynamicPayloadTypes) == 0 {
				err = NewTypeError("cannot allocate more dynamic codec payload types")
				return
			}
			pt := dynamicPayloadTypes[0]
			dynamicPayloadTypes = dynamicPayloadTypes[1:]

			rtxCodec := &RtpCodecCapability{
				Kind:                 codec.Kind,
				MimeType:             fmt.Sprintf("%s/rtx", codec.Kind),
				PreferredPayloadType: pt,
				ClockRate:            codec.ClockRate,
				Parameters: RtpCodecSpecificParameters{
					Apt: codec.PreferredPayloadType,
				},
				RtcpFeedback: []RtcpFeedback{},
			}

			// Append to the codec list.
			caps.Codecs = append(caps.Codecs, rtxCodec)
		}
	}

	return
}
