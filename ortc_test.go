package sdpbridge

import (
	"testing"

	"github.com/jiyeyuran/mediasoup-sdp-bridge/h264"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLocalRtpCapabilities(t *testing.T) {
	t.Run("succeed", func(t *testing.T) {
		mediaCodecs := []*RtpCodecCapability{
			{
				Kind:      "audio",
				MimeType:  "audio/opus",
				ClockRate: 48000,
				Channels:  2,
				Parameters: RtpCodecSpecificParameters{
					Useinbandfec: 1,
				},
			},
			{
				Kind:                 "video",
				MimeType:             "video/VP8",
				PreferredPayloadType: 125,
				ClockRate:            90000,
			},
			{
				Kind:      "video",
				MimeType:  "video/H264",
				ClockRate: 90000,
				Parameters: RtpCodecSpecificParameters{
					RtpParameter: h264.RtpParameter{
						LevelAsymmetryAllowed: 1,
						ProfileLevelId:        "42e01f",
					},
				},
			},
			{
				Kind:      "audio",
				MimeType:  "audio/PCMU",
				ClockRate: 8000,
			},
		}

		rtpCapabilities, err := GenerateLocalRtpCapabilities(mediaCodecs)
		require.NoError(t, err)

		assert.Len(t, rtpCapabilities.Codecs, 6)
		assert.Equal(t, &RtpCodecCapability{
			Kind:                 MediaKind_Audio,
			MimeType:             "audio/opus",
			PreferredPayloadType: 100, // 100 is the first available dynamic PT.
			Channels:             2,
			ClockRate:            48000,
			Parameters:           RtpCodecSpecificParameters{Useinbandfec: 1},
			RtcpFeedback: []RtcpFeedback{
				{Type: "transport-cc"},
			},
		}, rtpCapabilities.Codecs[0])

		assert.Equal(t, &RtpCodecCapability{
			Kind:                 MediaKind_Video,
			MimeType:             "video/VP8",
			PreferredPayloadType: 125,
			ClockRate:            90000,
			RtcpFeedback: []RtcpFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "goog-remb"},
				{Type: "transport-cc"},
			},
		}, rtpCapabilities.Codecs[1])

		assert.Equal(t, &RtpCodecCapability{
			Kind:                 MediaKind_Video,
			MimeType:             "video/rtx",
			PreferredPayloadType: 101, // 101 is the second available dynamic PT.
			ClockRate:            90000,
			Parameters:           RtpCodecSpecificParameters{Apt: 125},
			RtcpFeedback:         []RtcpFeedback{},
		}, rtpCapabilities.Codecs[2])

		assert.Equal(t, &RtpCodecCapability{
			Kind:                 MediaKind_Video,
			MimeType:             "video/H264",
			PreferredPayloadType: 102, // 102 is the third available dynamic PT.
			ClockRate:            90000,
			Parameters: RtpCodecSpecificParameters{
				RtpParameter: h264.RtpParameter{
					LevelAsymmetryAllowed: 1,
					ProfileLevelId:        "42e01f",
				},
			},
			RtcpFeedback: []RtcpFeedback{
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "goog-remb"},
				{Type: "transport-cc"},
			},
		}, rtpCapabilities.Codecs[3])

		assert.Equal(t, &RtpCodecCapability{
			Kind:                 MediaKind_Video,
			MimeType:             "video/rtx",
			PreferredPayloadType: 103,
			ClockRate:            90000,
			Parameters:           RtpCodecSpecificParameters{Apt: 102},
			RtcpFeedback:         []RtcpFeedback{},
		}, rtpCapabilities.Codecs[4])

		// PCMU keeps its static payload type.
		assert.EqualValues(t, 0, rtpCapabilities.Codecs[5].PreferredPayloadType)
		assert.Equal(t, 1, rtpCapabilities.Codecs[5].Channels)

		assert.NotEmpty(t, rtpCapabilities.HeaderExtensions)
	})

	t.Run("unsupported codecs", func(t *testing.T) {
		mediaCodecs := []*RtpCodecCapability{
			{
				Kind:      "audio",
				MimeType:  "audio/chicken",
				ClockRate: 48000,
				Channels:  4,
			},
		}
		_, err := GenerateLocalRtpCapabilities(mediaCodecs)
		assert.Error(t, err)

		mediaCodecs = []*RtpCodecCapability{
			{
				Kind:      "audio",
				MimeType:  "audio/opus",
				ClockRate: 48000,
				Channels:  1,
			},
		}
		_, err = GenerateLocalRtpCapabilities(mediaCodecs)
		assert.Error(t, err)
	})

	t.Run("too many codecs", func(t *testing.T) {
		mediaCodecs := []*RtpCodecCapability{}
		for i := 0; i < 100; i++ {
			mediaCodecs = append(mediaCodecs, &RtpCodecCapability{
				Kind:      "audio",
				MimeType:  "audio/opus",
				ClockRate: 48000,
				Channels:  2,
			})
		}
		_, err := GenerateLocalRtpCapabilities(mediaCodecs)
		assert.Error(t, err)
	})

	t.Run("no codecs", func(t *testing.T) {
		_, err := GenerateLocalRtpCapabilities(nil)
		assert.IsType(t, TypeError{}, err)
	})
}

func TestValidateRtpCapabilities(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		caps := RtpCapabilities{
			Codecs: []*RtpCodecCapability{
				{MimeType: "audio/PCMA", ClockRate: 8000},
				{MimeType: "video/VP8", ClockRate: 90000, Channels: 2},
			},
			HeaderExtensions: []*RtpHeaderExtension{
				{Kind: MediaKind_Audio, Uri: uriMid, PreferredId: 1},
			},
		}

		require.NoError(t, ValidateRtpCapabilities(&caps))

		assert.Equal(t, MediaKind_Audio, caps.Codecs[0].Kind)
		assert.Equal(t, 1, caps.Codecs[0].Channels)
		assert.Equal(t, MediaKind_Video, caps.Codecs[1].Kind)
		assert.Equal(t, 0, caps.Codecs[1].Channels)
		assert.Equal(t, Direction_Sendrecv, caps.HeaderExtensions[0].Direction)
	})

	testCases := []struct {
		name string
		caps RtpCapabilities
		err  string
	}{
		{
			name: "invalid mimeType",
			caps: RtpCapabilities{Codecs: []*RtpCodecCapability{
				{MimeType: "text/plain", ClockRate: 8000},
			}},
			err: "invalid codec.mimeType",
		},
		{
			name: "missing subtype",
			caps: RtpCapabilities{Codecs: []*RtpCodecCapability{
				{MimeType: "audio/", ClockRate: 8000},
			}},
			err: "invalid codec.mimeType",
		},
		{
			name: "missing clockRate",
			caps: RtpCapabilities{Codecs: []*RtpCodecCapability{
				{MimeType: "audio/opus"},
			}},
			err: "missing codec.clockRate",
		},
		{
			name: "feedback without type",
			caps: RtpCapabilities{Codecs: []*RtpCodecCapability{
				{MimeType: "video/VP8", ClockRate: 90000, RtcpFeedback: []RtcpFeedback{{Parameter: "pli"}}},
			}},
			err: "missing fb.type",
		},
		{
			name: "invalid ext kind",
			caps: RtpCapabilities{HeaderExtensions: []*RtpHeaderExtension{
				{Kind: "application", Uri: uriMid, PreferredId: 1},
			}},
			err: "invalid ext.kind",
		},
		{
			name: "missing ext uri",
			caps: RtpCapabilities{HeaderExtensions: []*RtpHeaderExtension{
				{Kind: MediaKind_Audio, PreferredId: 1},
			}},
			err: "missing ext.uri",
		},
		{
			name: "missing ext preferredId",
			caps: RtpCapabilities{HeaderExtensions: []*RtpHeaderExtension{
				{Kind: MediaKind_Audio, Uri: uriMid},
			}},
			err: "missing ext.preferredId",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			err := ValidateRtpCapabilities(&testCase.caps)
			assert.IsType(t, TypeError{}, err)
			assert.Contains(t, err.Error(), testCase.err)
		})
	}
}

func TestGetExtendedRtpCapabilities(t *testing.T) {
	localCaps := CreateLocalRtpCapabilities()
	remoteCaps := ExtractRtpCapabilities(mustParseSdp(offerSdp))
	require.NoError(t, ValidateRtpCapabilities(&remoteCaps))

	extendedCaps := GetExtendedRtpCapabilities(localCaps, remoteCaps)

	require.Len(t, extendedCaps.Codecs, 3)
	assert.Equal(t, &ExtendedCodec{
		Kind:              MediaKind_Audio,
		MimeType:          "audio/opus",
		ClockRate:         48000,
		Channels:          2,
		LocalPayloadType:  100,
		RemotePayloadType: 111,
		RemoteParameters: RtpCodecSpecificParameters{
			Minptime:     10,
			Useinbandfec: 1,
		},
		RtcpFeedback: []RtcpFeedback{{Type: "transport-cc"}},
	}, extendedCaps.Codecs[0])

	vp8 := extendedCaps.Codecs[1]
	assert.Equal(t, "video/VP8", vp8.MimeType)
	assert.EqualValues(t, 101, vp8.LocalPayloadType)
	assert.EqualValues(t, 102, vp8.LocalRtxPayloadType)
	assert.EqualValues(t, 96, vp8.RemotePayloadType)
	assert.EqualValues(t, 97, vp8.RemoteRtxPayloadType)

	h264Codec := extendedCaps.Codecs[2]
	assert.Equal(t, "video/H264", h264Codec.MimeType)
	assert.EqualValues(t, 103, h264Codec.LocalPayloadType)
	assert.EqualValues(t, 104, h264Codec.LocalRtxPayloadType)
	assert.EqualValues(t, 98, h264Codec.RemotePayloadType)
	assert.EqualValues(t, 99, h264Codec.RemoteRtxPayloadType)

	for _, ext := range extendedCaps.HeaderExtensions {
		if ext.Kind == MediaKind_Video && ext.Uri == uriVideoOrient {
			assert.Equal(t, 11, ext.SendId)
			assert.Equal(t, 13, ext.RecvId)
			assert.Equal(t, Direction_Sendrecv, ext.Direction)
		}
	}
	assert.Len(t, extendedCaps.HeaderExtensions, 5)
}

func TestGetExtendedRtpCapabilitiesH264Profile(t *testing.T) {
	localCaps := RtpCapabilities{
		Codecs: []*RtpCodecCapability{
			{
				Kind:                 MediaKind_Video,
				MimeType:             "video/H264",
				PreferredPayloadType: 100,
				ClockRate:            90000,
				Parameters: RtpCodecSpecificParameters{
					RtpParameter: h264.RtpParameter{
						PacketizationMode:     1,
						LevelAsymmetryAllowed: 1,
						ProfileLevelId:        "42e01f",
					},
				},
			},
		},
	}

	t.Run("profile mismatch", func(t *testing.T) {
		remoteCaps := RtpCapabilities{
			Codecs: []*RtpCodecCapability{
				{
					Kind:                 MediaKind_Video,
					MimeType:             "video/H264",
					PreferredPayloadType: 125,
					ClockRate:            90000,
					Parameters: RtpCodecSpecificParameters{
						RtpParameter: h264.RtpParameter{
							PacketizationMode: 1,
							ProfileLevelId:    "640032",
						},
					},
				},
			},
		}

		extendedCaps := GetExtendedRtpCapabilities(localCaps, remoteCaps)
		assert.Empty(t, extendedCaps.Codecs)
	})

	t.Run("level answer", func(t *testing.T) {
		remoteCaps := RtpCapabilities{
			Codecs: []*RtpCodecCapability{
				{
					Kind:                 MediaKind_Video,
					MimeType:             "video/H264",
					PreferredPayloadType: 125,
					ClockRate:            90000,
					Parameters: RtpCodecSpecificParameters{
						RtpParameter: h264.RtpParameter{
							PacketizationMode: 1,
							ProfileLevelId:    "42e00a",
						},
					},
				},
			},
		}

		extendedCaps := GetExtendedRtpCapabilities(localCaps, remoteCaps)
		require.Len(t, extendedCaps.Codecs, 1)

		// Level asymmetry is not allowed by the remote side so the answer takes
		// the lowest level.
		assert.Equal(t, "42e00a", extendedCaps.Codecs[0].LocalParameters.ProfileLevelId)
		assert.Equal(t, "42e01f", localCaps.Codecs[0].Parameters.ProfileLevelId)
	})
}

func TestGetExtendedRtpCapabilitiesVP9Profile(t *testing.T) {
	localCaps := RtpCapabilities{
		Codecs: []*RtpCodecCapability{
			{
				Kind:                 MediaKind_Video,
				MimeType:             "video/VP9",
				PreferredPayloadType: 100,
				ClockRate:            90000,
			},
		},
	}
	remoteCaps := RtpCapabilities{
		Codecs: []*RtpCodecCapability{
			{
				Kind:                 MediaKind_Video,
				MimeType:             "video/VP9",
				PreferredPayloadType: 98,
				ClockRate:            90000,
				Parameters:           RtpCodecSpecificParameters{ProfileId: ref(uint8(2))},
			},
			{
				Kind:                 MediaKind_Video,
				MimeType:             "video/VP9",
				PreferredPayloadType: 96,
				ClockRate:            90000,
				Parameters:           RtpCodecSpecificParameters{ProfileId: ref(uint8(0))},
			},
		},
	}

	extendedCaps := GetExtendedRtpCapabilities(localCaps, remoteCaps)

	require.Len(t, extendedCaps.Codecs, 1)
	assert.EqualValues(t, 96, extendedCaps.Codecs[0].RemotePayloadType)
}

func TestGetRecvRtpCapabilities(t *testing.T) {
	extendedCaps := ExtendedRtpCapabilities{
		Codecs: []*ExtendedCodec{
			{
				Kind:                 MediaKind_Video,
				MimeType:             "video/VP8",
				ClockRate:            90000,
				LocalPayloadType:     96,
				LocalRtxPayloadType:  97,
				RemotePayloadType:    101,
				RemoteRtxPayloadType: 102,
				RtcpFeedback:         []RtcpFeedback{{Type: "nack"}},
			},
		},
		HeaderExtensions: []*ExtendedHeaderExtension{
			{Kind: MediaKind_Video, Uri: uriMid, SendId: 4, RecvId: 1, Direction: Direction_Sendrecv},
			{Kind: MediaKind_Video, Uri: uriAbsSendTime, SendId: 3, RecvId: 4, Direction: Direction_Sendonly},
		},
	}

	caps := GetRecvRtpCapabilities(extendedCaps)

	assert.Equal(t, []*RtpCodecCapability{
		{
			Kind:                 MediaKind_Video,
			MimeType:             "video/VP8",
			PreferredPayloadType: 101,
			ClockRate:            90000,
			RtcpFeedback:         []RtcpFeedback{{Type: "nack"}},
		},
		{
			Kind:                 MediaKind_Video,
			MimeType:             "video/rtx",
			PreferredPayloadType: 102,
			ClockRate:            90000,
			Parameters:           RtpCodecSpecificParameters{Apt: 101},
			RtcpFeedback:         []RtcpFeedback{},
		},
	}, caps.Codecs)

	assert.Equal(t, []*RtpHeaderExtension{
		{Kind: MediaKind_Video, Uri: uriMid, PreferredId: 1, Direction: Direction_Sendrecv},
	}, caps.HeaderExtensions)
}

func TestGetSendingRtpParameters(t *testing.T) {
	extendedCaps := ExtendedRtpCapabilities{
		Codecs: []*ExtendedCodec{
			{
				Kind:              MediaKind_Audio,
				MimeType:          "audio/opus",
				ClockRate:         48000,
				Channels:          2,
				LocalPayloadType:  100,
				RemotePayloadType: 111,
				RtcpFeedback:      []RtcpFeedback{},
			},
			{
				Kind:                 MediaKind_Video,
				MimeType:             "video/VP8",
				ClockRate:            90000,
				LocalPayloadType:     101,
				LocalRtxPayloadType:  102,
				RemotePayloadType:    96,
				RemoteRtxPayloadType: 97,
				RtcpFeedback:         []RtcpFeedback{},
			},
		},
		HeaderExtensions: []*ExtendedHeaderExtension{
			{Kind: MediaKind_Audio, Uri: uriAudioLevel, SendId: 10, RecvId: 1, Direction: Direction_Sendrecv},
			{Kind: MediaKind_Video, Uri: uriMid, SendId: 1, RecvId: 4, Direction: Direction_Sendrecv},
			{Kind: MediaKind_Video, Uri: uriTransportWide, SendId: 5, RecvId: 5, Direction: Direction_Recvonly},
		},
	}

	params := GetSendingRtpParameters(MediaKind_Video, extendedCaps)

	assert.Equal(t, []*RtpCodecParameters{
		{
			MimeType:     "video/VP8",
			PayloadType:  101,
			ClockRate:    90000,
			RtcpFeedback: []RtcpFeedback{},
		},
		{
			MimeType:     "video/rtx",
			PayloadType:  102,
			ClockRate:    90000,
			Parameters:   RtpCodecSpecificParameters{Apt: 101},
			RtcpFeedback: []RtcpFeedback{},
		},
	}, params.Codecs)
	assert.Equal(t, []RtpHeaderExtensionParameters{
		{Uri: uriMid, Id: 1},
	}, params.HeaderExtensions)
	assert.NotNil(t, params.Encodings)
	assert.Empty(t, params.Encodings)

	assert.True(t, CanSend(MediaKind_Audio, extendedCaps))
	assert.True(t, CanSend(MediaKind_Video, extendedCaps))
	assert.False(t, CanSend(MediaKind_Video, ExtendedRtpCapabilities{}))
}

func TestFindRtxCodec(t *testing.T) {
	codecs := []*RtpCodecCapability{
		{MimeType: "audio/PCMU", ClockRate: 8000, PreferredPayloadType: 0},
		{MimeType: "video/rtx", ClockRate: 90000, PreferredPayloadType: 97},
		{MimeType: "video/rtx", ClockRate: 90000, PreferredPayloadType: 99, Parameters: RtpCodecSpecificParameters{Apt: 98}},
	}

	assert.Nil(t, findRtxCodec(codecs, MediaKind_Audio, 0))
	assert.Equal(t, codecs[1], findRtxCodec(codecs, MediaKind_Video, 0))
	assert.Equal(t, codecs[2], findRtxCodec(codecs, MediaKind_Video, 98))
	assert.Nil(t, findRtxCodec(codecs, MediaKind_Video, 96))
}
