package sdpbridge

import (
	"strings"

	"github.com/jiyeyuran/mediasoup-sdp-bridge/h264"
)

var DYNAMIC_PAYLOAD_TYPES = [...]byte{
	100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110, 111, 112, 113, 114, 115,
	116, 117, 118, 119, 120, 121, 122, 123, 124, 125, 126, 127, 96, 97, 98, 99, 77,
	78, 79, 80, 81, 82, 83, 84, 85, 86, 87, 88, 89, 90, 91, 92, 93, 94, 95, 35, 36,
	37, 38, 39, 40, 41, 42, 43, 44, 45, 46, 47, 48, 49, 50, 51, 52, 53, 54, 55, 56,
	57, 58, 59, 60, 61, 62, 63, 64, 65, 66, 67, 68, 69, 70, 71,
}

type matchOptions struct {
	strict bool
	modify bool
}

// ExtendedRtpCapabilities is the intersection of a local and a remote
// RtpCapabilities, keeping the identifiers assigned by each side.
type ExtendedRtpCapabilities struct {
	Codecs           []*ExtendedCodec           `json:"codecs"`
	HeaderExtensions []*ExtendedHeaderExtension `json:"headerExtensions"`
}

// ExtendedCodec is a codec supported by both sides. RTX payload types are 0
// when either side has no RTX codec for it.
type ExtendedCodec struct {
	Kind                 MediaKind                  `json:"kind"`
	MimeType             string                     `json:"mimeType"`
	ClockRate            int                        `json:"clockRate"`
	Channels             int                        `json:"channels,omitempty"`
	LocalPayloadType     byte                       `json:"localPayloadType"`
	LocalRtxPayloadType  byte                       `json:"localRtxPayloadType,omitempty"`
	RemotePayloadType    byte                       `json:"remotePayloadType"`
	RemoteRtxPayloadType byte                       `json:"remoteRtxPayloadType,omitempty"`
	LocalParameters      RtpCodecSpecificParameters `json:"localParameters"`
	RemoteParameters     RtpCodecSpecificParameters `json:"remoteParameters"`
	RtcpFeedback         []RtcpFeedback             `json:"rtcpFeedback"`
}

// ExtendedHeaderExtension is a header extension supported by both sides.
// SendId is the local id and RecvId the remote one. Direction is seen from the
// local side.
type ExtendedHeaderExtension struct {
	Kind      MediaKind                   `json:"kind"`
	Uri       string                      `json:"uri"`
	SendId    int                         `json:"sendId"`
	RecvId    int                         `json:"recvId"`
	Encrypt   bool                        `json:"encrypt"`
	Direction RtpHeaderExtensionDirection `json:"direction"`
}

/**
 * Validates RtpCapabilities. It may modify given data by adding missing
 * fields with default values.
 */
func ValidateRtpCapabilities(params *RtpCapabilities) (err error) {
	for _, codec := range params.Codecs {
		if err = validateRtpCodecCapability(codec); err != nil {
			return
		}
	}

	for _, ext := range params.HeaderExtensions {
		if err = validateRtpHeaderExtension(ext); err != nil {
			return
		}
	}

	return
}

/**
 * Validates RtpCodecCapability. It may modify given data by adding missing
 * fields with default values.
 */
func validateRtpCodecCapability(code *RtpCodecCapability) (err error) {
	if code == nil {
		return NewTypeError("codec is nil")
	}
	mimeType := strings.ToLower(code.MimeType)

	// mimeType is mandatory.
	kind, subtype, _ := strings.Cut(mimeType, "/")
	if !MediaKind(kind).valid() || len(subtype) == 0 {
		return NewTypeError("invalid codec.mimeType")
	}

	code.Kind = MediaKind(kind)

	// clockRate is mandatory.
	if code.ClockRate <= 0 {
		return NewTypeError("missing codec.clockRate")
	}

	// channels is optional. If unset, set it to 1 (just if audio).
	if code.Kind == MediaKind_Audio {
		if code.Channels == 0 {
			code.Channels = 1
		}
	} else {
		code.Channels = 0
	}

	for _, fb := range code.RtcpFeedback {
		if err = validateRtcpFeedback(fb); err != nil {
			return
		}
	}

	return
}

/**
 * Validates RtcpFeedback. It may modify given data by adding missing
 * fields with default values.
 */
func validateRtcpFeedback(fb RtcpFeedback) error {
	if len(fb.Type) == 0 {
		return NewTypeError("missing fb.type")
	}
	return nil
}

/**
 * Validates RtpHeaderExtension. It may modify given data by adding missing
 * fields with default values.
 */
func validateRtpHeaderExtension(ext *RtpHeaderExtension) (err error) {
	if ext == nil {
		return NewTypeError("ext is nil")
	}
	if len(ext.Kind) > 0 && !ext.Kind.valid() {
		return NewTypeError("invalid ext.kind")
	}

	// uri is mandatory.
	if len(ext.Uri) == 0 {
		return NewTypeError("missing ext.uri")
	}

	// preferredId is mandatory.
	if ext.PreferredId == 0 {
		return NewTypeError("missing ext.preferredId")
	}

	// direction is optional. If unset set it to sendrecv.
	if len(ext.Direction) == 0 {
		ext.Direction = Direction_Sendrecv
	}

	return
}

/**
 * Generate extended RTP capabilities for sending and receiving. localCaps is
 * never modified: codec matching may rewrite the H264 profile-level-id of the
 * local codec, so it works on a copy.
 */
func GetExtendedRtpCapabilities(localCaps, remoteCaps RtpCapabilities) ExtendedRtpCapabilities {
	localCaps = cloneRtpCapabilities(localCaps)

	extendedRtpCapabilities := ExtendedRtpCapabilities{
		Codecs:           []*ExtendedCodec{},
		HeaderExtensions: []*ExtendedHeaderExtension{},
	}

	// Match media codecs and keep the order preferred by remoteCaps.
	for _, remoteCodec := range remoteCaps.Codecs {
		if remoteCodec.isRtxCodec() {
			continue
		}

		var matchingLocalCodec *RtpCodecCapability
		for _, localCodec := range localCaps.Codecs {
			if matchCodecs(localCodec, remoteCodec, matchOptions{strict: true, modify: true}) {
				matchingLocalCodec = localCodec
				break
			}
		}

		if matchingLocalCodec == nil {
			continue
		}

		extendedRtpCapabilities.Codecs = append(extendedRtpCapabilities.Codecs, &ExtendedCodec{
			Kind:              mimeTypeKind(matchingLocalCodec.MimeType),
			MimeType:          matchingLocalCodec.MimeType,
			ClockRate:         matchingLocalCodec.ClockRate,
			Channels:          matchingLocalCodec.Channels,
			LocalPayloadType:  matchingLocalCodec.PreferredPayloadType,
			RemotePayloadType: remoteCodec.PreferredPayloadType,
			LocalParameters:   matchingLocalCodec.Parameters,
			RemoteParameters:  remoteCodec.Parameters,
			RtcpFeedback:      reduceRtcpFeedback(matchingLocalCodec, remoteCodec),
		})
	}

	// Match RTX codecs.
	for _, extendedCodec := range extendedRtpCapabilities.Codecs {
		matchingLocalRtxCodec := findRtxCodec(localCaps.Codecs, extendedCodec.Kind, extendedCodec.LocalPayloadType)
		matchingRemoteRtxCodec := findRtxCodec(remoteCaps.Codecs, extendedCodec.Kind, extendedCodec.RemotePayloadType)

		if matchingLocalRtxCodec != nil && matchingRemoteRtxCodec != nil {
			extendedCodec.LocalRtxPayloadType = matchingLocalRtxCodec.PreferredPayloadType
			extendedCodec.RemoteRtxPayloadType = matchingRemoteRtxCodec.PreferredPayloadType
		}
	}

	// Match header extensions.
	for _, remoteExt := range remoteCaps.HeaderExtensions {
		var matchingLocalExt *RtpHeaderExtension
		for _, localExt := range localCaps.HeaderExtensions {
			if matchHeaderExtensions(localExt, remoteExt) {
				matchingLocalExt = localExt
				break
			}
		}

		if matchingLocalExt == nil {
			continue
		}

		extendedExt := &ExtendedHeaderExtension{
			Kind:      remoteExt.Kind,
			Uri:       remoteExt.Uri,
			SendId:    matchingLocalExt.PreferredId,
			RecvId:    remoteExt.PreferredId,
			Encrypt:   matchingLocalExt.PreferredEncrypt,
			Direction: Direction_Sendrecv,
		}

		switch remoteExt.Direction {
		case Direction_Recvonly:
			extendedExt.Direction = Direction_Sendonly
		case Direction_Sendonly:
			extendedExt.Direction = Direction_Recvonly
		case Direction_Inactive:
			extendedExt.Direction = Direction_Inactive
		}

		extendedRtpCapabilities.HeaderExtensions = append(extendedRtpCapabilities.HeaderExtensions, extendedExt)
	}

	return extendedRtpCapabilities
}

/**
 * Generate RTP capabilities for receiving media based on the given extended
 * RTP capabilities.
 */
func GetRecvRtpCapabilities(extendedRtpCapabilities ExtendedRtpCapabilities) RtpCapabilities {
	rtpCapabilities := RtpCapabilities{
		Codecs:           []*RtpCodecCapability{},
		HeaderExtensions: []*RtpHeaderExtension{},
	}

	for _, extendedCodec := range extendedRtpCapabilities.Codecs {
		rtpCapabilities.Codecs = append(rtpCapabilities.Codecs, &RtpCodecCapability{
			Kind:                 extendedCodec.Kind,
			MimeType:             extendedCodec.MimeType,
			PreferredPayloadType: extendedCodec.RemotePayloadType,
			ClockRate:            extendedCodec.ClockRate,
			Channels:             extendedCodec.Channels,
			Parameters:           extendedCodec.LocalParameters,
			RtcpFeedback:         extendedCodec.RtcpFeedback,
		})

		// Add RTX codec.
		if extendedCodec.RemoteRtxPayloadType == 0 {
			continue
		}

		rtpCapabilities.Codecs = append(rtpCapabilities.Codecs, &RtpCodecCapability{
			Kind:                 extendedCodec.Kind,
			MimeType:             string(extendedCodec.Kind) + "/rtx",
			PreferredPayloadType: extendedCodec.RemoteRtxPayloadType,
			ClockRate:            extendedCodec.ClockRate,
			Parameters: RtpCodecSpecificParameters{
				Apt: extendedCodec.RemotePayloadType,
			},
			RtcpFeedback: []RtcpFeedback{},
		})
	}

	for _, extendedExtension := range extendedRtpCapabilities.HeaderExtensions {
		// Ignore RTP extensions not valid for receiving.
		if extendedExtension.Direction != Direction_Sendrecv &&
			extendedExtension.Direction != Direction_Recvonly {
			continue
		}

		rtpCapabilities.HeaderExtensions = append(rtpCapabilities.HeaderExtensions, &RtpHeaderExtension{
			Kind:             extendedExtension.Kind,
			Uri:              extendedExtension.Uri,
			PreferredId:      extendedExtension.RecvId,
			PreferredEncrypt: extendedExtension.Encrypt,
			Direction:        extendedExtension.Direction,
		})
	}

	return rtpCapabilities
}

/**
 * Generate RTP parameters of the given kind for sending media. Payload types
 * and header extension ids are the local ones.
 */
func GetSendingRtpParameters(kind MediaKind, extendedRtpCapabilities ExtendedRtpCapabilities) RtpParameters {
	rtpParameters := RtpParameters{
		Codecs:           []*RtpCodecParameters{},
		HeaderExtensions: []RtpHeaderExtensionParameters{},
		Encodings:        []RtpEncodingParameters{},
	}

	for _, extendedCodec := range extendedRtpCapabilities.Codecs {
		if extendedCodec.Kind != kind {
			continue
		}

		rtpParameters.Codecs = append(rtpParameters.Codecs, &RtpCodecParameters{
			MimeType:     extendedCodec.MimeType,
			PayloadType:  extendedCodec.LocalPayloadType,
			ClockRate:    extendedCodec.ClockRate,
			Channels:     extendedCodec.Channels,
			Parameters:   extendedCodec.LocalParameters,
			RtcpFeedback: extendedCodec.RtcpFeedback,
		})

		// Add RTX codec.
		if extendedCodec.LocalRtxPayloadType != 0 {
			rtpParameters.Codecs = append(rtpParameters.Codecs, &RtpCodecParameters{
				MimeType:    string(extendedCodec.Kind) + "/rtx",
				PayloadType: extendedCodec.LocalRtxPayloadType,
				ClockRate:   extendedCodec.ClockRate,
				Parameters: RtpCodecSpecificParameters{
					Apt: extendedCodec.LocalPayloadType,
				},
				RtcpFeedback: []RtcpFeedback{},
			})
		}
	}

	for _, extendedExtension := range extendedRtpCapabilities.HeaderExtensions {
		// Ignore RTP extensions of a different kind and those not valid for sending.
		if (len(extendedExtension.Kind) > 0 && extendedExtension.Kind != kind) ||
			(extendedExtension.Direction != Direction_Sendrecv &&
				extendedExtension.Direction != Direction_Sendonly) {
			continue
		}

		rtpParameters.HeaderExtensions = append(rtpParameters.HeaderExtensions, RtpHeaderExtensionParameters{
			Uri:     extendedExtension.Uri,
			Id:      extendedExtension.SendId,
			Encrypt: extendedExtension.Encrypt,
		})
	}

	return rtpParameters
}

/**
 * Whether media can be sent based on the given RTP capabilities.
 */
func CanSend(kind MediaKind, extendedRtpCapabilities ExtendedRtpCapabilities) bool {
	for _, codec := range extendedRtpCapabilities.Codecs {
		if codec.Kind == kind {
			return true
		}
	}

	return false
}

func matchCodecs(aCodec, bCodec *RtpCodecCapability, options matchOptions) (matched bool) {
	aMimeType := strings.ToLower(aCodec.MimeType)
	bMimeType := strings.ToLower(bCodec.MimeType)

	if aMimeType != bMimeType {
		return
	}

	if aCodec.ClockRate != bCodec.ClockRate {
		return
	}

	if strings.HasPrefix(aMimeType, "audio/") &&
		aCodec.Channels > 0 &&
		bCodec.Channels > 0 &&
		aCodec.Channels != bCodec.Channels {
		return
	}

	switch aMimeType {
	case "video/h264":
		aParameters, bParameters := aCodec.Parameters, bCodec.Parameters

		if aParameters.PacketizationMode != bParameters.PacketizationMode {
			return
		}

		if options.strict {
			if !h264.IsSameProfile(aParameters.ProfileLevelId, bParameters.ProfileLevelId) {
				return
			}

			selectedProfileLevelId, err := h264.GenerateProfileLevelIdForAnswer(
				aParameters.RtpParameter, bParameters.RtpParameter)
			if err != nil {
				return
			}

			if options.modify {
				aCodec.Parameters.ProfileLevelId = selectedProfileLevelId
			}
		}

	case "video/vp9":
		if options.strict {
			var aProfileId, bProfileId uint8

			if aCodec.Parameters.ProfileId != nil {
				aProfileId = *aCodec.Parameters.ProfileId
			}
			if bCodec.Parameters.ProfileId != nil {
				bProfileId = *bCodec.Parameters.ProfileId
			}
			if aProfileId != bProfileId {
				return
			}
		}
	}

	return true
}

func matchHeaderExtensions(aExt, bExt *RtpHeaderExtension) bool {
	if len(aExt.Kind) > 0 && len(bExt.Kind) > 0 && aExt.Kind != bExt.Kind {
		return false
	}

	return aExt.Uri == bExt.Uri
}

func reduceRtcpFeedback(codecA, codecB *RtpCodecCapability) []RtcpFeedback {
	reducedRtcpFeedback := []RtcpFeedback{}

	for _, aFb := range codecA.RtcpFeedback {
		for _, bFb := range codecB.RtcpFeedback {
			if aFb.Type == bFb.Type && aFb.Parameter == bFb.Parameter {
				reducedRtcpFeedback = append(reducedRtcpFeedback, bFb)
				break
			}
		}
	}

	return reducedRtcpFeedback
}

// findRtxCodec returns the RTX codec of the given kind associated to the
// payload type apt. An RTX codec without apt has Apt 0, so the kind keeps it
// from being bound to an audio codec with static payload type 0.
func findRtxCodec(codecs []*RtpCodecCapability, kind MediaKind, apt byte) *RtpCodecCapability {
	for _, codec := range codecs {
		if codec.isRtxCodec() && mimeTypeKind(codec.MimeType) == kind && codec.Parameters.Apt == apt {
			return codec
		}
	}

	return nil
}

func cloneRtpCapabilities(caps RtpCapabilities) RtpCapabilities {
	cloned := RtpCapabilities{
		Codecs:           make([]*RtpCodecCapability, 0, len(caps.Codecs)),
		HeaderExtensions: make([]*RtpHeaderExtension, 0, len(caps.HeaderExtensions)),
		FecMechanisms:    append([]string(nil), caps.FecMechanisms...),
	}

	for _, codec := range caps.Codecs {
		c := *codec
		if codec.Parameters.ProfileId != nil {
			c.Parameters.ProfileId = ref(*codec.Parameters.ProfileId)
		}
		c.RtcpFeedback = append([]RtcpFeedback(nil), codec.RtcpFeedback...)
		cloned.Codecs = append(cloned.Codecs, &c)
	}

	for _, ext := range caps.HeaderExtensions {
		e := *ext
		cloned.HeaderExtensions = append(cloned.HeaderExtensions, &e)
	}

	return cloned
}
