package sdpbridge

import (
	"strings"

	"github.com/jiyeyuran/mediasoup-sdp-bridge/h264"
	"github.com/notedit/sdp/transform"
)

const (
	uriMid            = "urn:ietf:params:rtp-hdrext:sdes:mid"
	uriAbsSendTime    = "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"
	uriAudioLevel     = "urn:ietf:params:rtp-hdrext:ssrc-audio-level"
	uriVideoOrient    = "urn:3gpp:video-orientation"
	uriTransportWide  = "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01"
	sdpSessionHeader  = "v=0\r\no=- 4611731400430051336 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"
	sdpEncryptedExtId = 14
)

// Chrome like offer with one audio and one video section.
var offerSdp = buildSdp(
	"a=group:BUNDLE 0 1",
	"m=audio 9 UDP/TLS/RTP/SAVPF 111 0",
	"c=IN IP4 0.0.0.0",
	"a=rtcp:9 IN IP4 0.0.0.0",
	"a=mid:0",
	"a=extmap:1 "+uriAudioLevel,
	"a=extmap:4 "+uriMid,
	"a=sendrecv",
	"a=rtcp-mux",
	"a=rtpmap:111 opus/48000/2",
	"a=rtcp-fb:111 transport-cc",
	"a=fmtp:111 minptime=10;useinbandfec=1",
	"a=rtpmap:0 PCMU/8000",
	"a=ssrc:1001 cname:audiocname",
	"a=ssrc:1001 msid:stream audio",
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97 98 99",
	"c=IN IP4 0.0.0.0",
	"a=mid:1",
	"a=extmap:4 "+uriMid,
	"a=extmap:3 "+uriAbsSendTime,
	"a=extmap:13 "+uriVideoOrient,
	"a=sendrecv",
	"a=rtcp-mux",
	"a=rtcp-rsize",
	"a=rtpmap:96 VP8/90000",
	"a=rtcp-fb:96 goog-remb",
	"a=rtcp-fb:96 transport-cc",
	"a=rtcp-fb:96 ccm fir",
	"a=rtcp-fb:96 nack",
	"a=rtcp-fb:96 nack pli",
	"a=rtpmap:97 rtx/90000",
	"a=fmtp:97 apt=96",
	"a=rtpmap:98 H264/90000",
	"a=rtcp-fb:98 nack",
	"a=fmtp:98 level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
	"a=rtpmap:99 rtx/90000",
	"a=fmtp:99 apt=98",
	"a=ssrc-group:FID 2001 2002",
	"a=ssrc:2001 cname:videocname",
	"a=ssrc:2002 cname:videocname",
)

// buildSdp prepends the session header to the given lines and joins them with
// CRLF.
func buildSdp(lines ...string) string {
	return sdpSessionHeader + strings.Join(lines, "\r\n") + "\r\n"
}

func mustParseSdp(raw string) *transform.SdpStruct {
	sdpObject, err := ParseSdp([]byte(raw))
	if err != nil {
		panic(err)
	}
	return sdpObject
}

// CreateLocalRtpCapabilities returns local capabilities with opus, VP8 and
// H264 assigned to the payload types 100, 101 (rtx 102) and 103 (rtx 104).
func CreateLocalRtpCapabilities() RtpCapabilities {
	caps, err := GenerateLocalRtpCapabilities([]*RtpCodecCapability{
		{
			Kind:      "audio",
			MimeType:  "audio/opus",
			ClockRate: 48000,
			Channels:  2,
		},
		{
			Kind:      "video",
			MimeType:  "video/VP8",
			ClockRate: 90000,
		},
		{
			Kind:      "video",
			MimeType:  "video/H264",
			ClockRate: 90000,
			Parameters: RtpCodecSpecificParameters{
				RtpParameter: h264.RtpParameter{
					LevelAsymmetryAllowed: 1,
					PacketizationMode:     1,
					ProfileLevelId:        "42e01f",
				},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return caps
}
