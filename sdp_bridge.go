package sdpbridge

import (
	"reflect"

	"github.com/go-logr/logr"
	"github.com/notedit/sdp/transform"
)

// DefaultTemporalLayers is the number of temporal layers assumed for every
// simulcast stream announced with a=rid. SDP tells the spatial layers (one per
// rid) but not the temporal ones; Chrome and Firefox both generate 3.
const DefaultTemporalLayers = 3

// TemporalLayersFunc returns the number of temporal layers of the simulcast
// stream identified by the given send rid. Values without a scalability mode
// name, i.e. outside 1 to 99, fall back to DefaultTemporalLayers.
type TemporalLayersFunc func(kind MediaKind, rid *transform.RidStruct) int

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used to report failures and debug dumps.
func WithLogger(logger logr.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithTemporalLayers replaces the temporal layer policy of rid based
// simulcast encodings.
func WithTemporalLayers(fn TemporalLayersFunc) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.temporalLayers = fn
		}
	}
}

// Resolver converts remote SDP descriptions into mediasoup RTP capabilities
// and parameters. It holds configuration only and is safe for concurrent use.
type Resolver struct {
	logger         logr.Logger
	temporalLayers TemporalLayersFunc
}

func NewResolver(options ...Option) *Resolver {
	r := &Resolver{
		logger: NewLogger("SdpBridge"),
		temporalLayers: func(MediaKind, *transform.RidStruct) int {
			return DefaultTemporalLayers
		},
	}

	for _, option := range options {
		option(r)
	}

	return r
}

var defaultResolver = NewResolver()

// SdpToConsumerRtpCapabilities resolves the consumer RTP capabilities of the
// given remote SDP with the default Resolver.
func SdpToConsumerRtpCapabilities(sdpObject *transform.SdpStruct, localCaps RtpCapabilities) (RtpCapabilities, error) {
	return defaultResolver.ConsumerRtpCapabilities(sdpObject, localCaps)
}

// SdpToProducerRtpParameters resolves the producer RTP parameters of the given
// remote SDP with the default Resolver.
func SdpToProducerRtpParameters(sdpObject *transform.SdpStruct, localCaps RtpCapabilities, kind MediaKind) (RtpParameters, error) {
	return defaultResolver.ProducerRtpParameters(sdpObject, localCaps, kind)
}

// ConsumerRtpCapabilities returns the RTP capabilities a consumer must use to
// receive the remote tracks described by sdpObject, given the local RTP
// capabilities. It fails with a *ValidationError when the capabilities found
// in the SDP are invalid.
func (r *Resolver) ConsumerRtpCapabilities(sdpObject *transform.SdpStruct, localCaps RtpCapabilities) (RtpCapabilities, error) {
	const operation = "SdpToConsumerRtpCapabilities"

	caps, err := r.extractRtpCapabilities(operation, sdpObject, nil)
	if err != nil {
		return RtpCapabilities{}, err
	}

	extendedCaps := GetExtendedRtpCapabilities(caps, localCaps)
	consumerCaps := GetRecvRtpCapabilities(extendedCaps)

	r.logger.V(1).Info(operation,
		"sdpRtpCapabilities", caps,
		"extendedRtpCapabilities", extendedCaps,
		"consumerRtpCapabilities", consumerCaps,
	)

	return consumerCaps, nil
}

// ProducerRtpParameters returns the RTP parameters a producer of the given kind
// must use so that the remote peer described by sdpObject can decode the
// media: payload types and header extension ids are the ones the remote peer
// declared, and mid, encodings and RTCP settings come from its media section.
// It fails with a *ValidationError when the capabilities found in the SDP are
// invalid.
func (r *Resolver) ProducerRtpParameters(sdpObject *transform.SdpStruct, localCaps RtpCapabilities, kind MediaKind) (RtpParameters, error) {
	const operation = "SdpToProducerRtpParameters"

	if !kind.valid() {
		return RtpParameters{}, NewTypeError("invalid kind %q", kind)
	}

	caps, err := r.extractRtpCapabilities(operation, sdpObject, &kind)
	if err != nil {
		return RtpParameters{}, err
	}

	extendedCaps := GetExtendedRtpCapabilities(localCaps, caps)
	producerParams := GetSendingRtpParameters(kind, extendedCaps)

	// GetSendingRtpParameters uses the local payload types and header extension
	// ids, but an answer has to keep the ones the remote peer offered.
	correctPayloadTypes(producerParams.Codecs, extendedCaps)
	correctHeaderExtensionIds(producerParams.HeaderExtensions, kind, extendedCaps)

	mediaObject := FindMediaObject(sdpObject, kind)
	if mediaObject == nil {
		mediaObject = &transform.MediaStruct{}
	}

	// Fill RtpParameters.Mid.
	if len(mediaObject.Mid) > 0 {
		producerParams.Mid = mediaObject.Mid
	} else if kind == MediaKind_Audio {
		producerParams.Mid = "0"
	} else {
		producerParams.Mid = "1"
	}

	// Fill RtpParameters.Encodings.
	if producerParams.Encodings, err = r.getEncodings(kind, mediaObject); err != nil {
		return RtpParameters{}, err
	}

	// Fill RtpParameters.Rtcp.
	producerParams.Rtcp = RtcpParameters{
		Cname:       GetCname(mediaObject),
		ReducedSize: ref(mediaObject.RtcpRsize == "rtcp-rsize"),
		Mux:         ref(mediaObject.RtcpMux == "rtcp-mux"),
	}

	r.logger.V(1).Info(operation,
		"kind", kind,
		"sdpRtpCapabilities", caps,
		"extendedRtpCapabilities", extendedCaps,
		"producerRtpParameters", producerParams,
	)

	return producerParams, nil
}

// extractRtpCapabilities extracts and validates the RTP capabilities of
// sdpObject, keeping only those of the given kind when it is not nil.
func (r *Resolver) extractRtpCapabilities(
	operation string,
	sdpObject *transform.SdpStruct,
	kind *MediaKind,
) (caps RtpCapabilities, err error) {
	caps = ExtractRtpCapabilities(sdpObject)

	// Filter out all caps that don't match the desired media kind.
	if kind != nil {
		codecs := caps.Codecs[:0]
		for _, codec := range caps.Codecs {
			if codec.Kind == *kind {
				codecs = append(codecs, codec)
			}
		}
		caps.Codecs = codecs

		headerExtensions := caps.HeaderExtensions[:0]
		for _, ext := range caps.HeaderExtensions {
			if ext.Kind == *kind {
				headerExtensions = append(headerExtensions, ext)
			}
		}
		caps.HeaderExtensions = headerExtensions
	}

	if err = ValidateRtpCapabilities(&caps); err != nil {
		return RtpCapabilities{}, r.validationFailed(operation, err)
	}

	return
}

func (r *Resolver) validationFailed(operation string, cause error) error {
	err := &ValidationError{
		Operation: operation,
		Err:       cause,
	}
	r.logger.Error(cause, "cannot validate SDP", "operation", operation)

	return err
}

func (r *Resolver) getEncodings(kind MediaKind, mediaObject *transform.MediaStruct) (encodings []RtpEncodingParameters, err error) {
	encodings = []RtpEncodingParameters{}

	if len(mediaObject.Ssrcs) > 0 {
		if encodings, err = GetRtpEncodings(mediaObject); err != nil {
			return
		}
	}

	// If "rid" is in use it means multiple simulcast RTP streams, one per send
	// rid, in declaration order.
	idx := 0
	for _, rid := range mediaObject.Rids {
		if rid.Direction != "send" {
			continue
		}

		encoding := RtpEncodingParameters{
			Rid:             rid.Id,
			ScalabilityMode: r.scalabilityMode(kind, rid),
		}

		if idx < len(encodings) {
			if err = override(&encodings[idx], encoding); err != nil {
				return
			}
		} else {
			encodings = append(encodings, encoding)
		}
		idx++
	}

	return
}

func (r *Resolver) scalabilityMode(kind MediaKind, rid *transform.RidStruct) string {
	mode := ScalabilityMode{
		SpatialLayers:  1,
		TemporalLayers: r.temporalLayers(kind, rid),
	}

	// The name must read back as the same layers.
	if ParseScalabilityMode(mode.String()) != mode {
		mode.TemporalLayers = DefaultTemporalLayers
	}

	return mode.String()
}

// correctPayloadTypes rebinds the codecs to the payload types of the remote
// side. Codecs without a matching extended codec are left as they are.
func correctPayloadTypes(codecs []*RtpCodecParameters, extendedCaps ExtendedRtpCapabilities) {
	for _, codec := range codecs {
		if codec.isRtxCodec() {
			extendedCodec := findExtendedCodec(extendedCaps.Codecs, func(c *ExtendedCodec) bool {
				return c.LocalPayloadType == codec.Parameters.Apt
			})
			if extendedCodec != nil {
				codec.PayloadType = extendedCodec.RemoteRtxPayloadType
				codec.Parameters.Apt = extendedCodec.RemotePayloadType
			}
			continue
		}

		extendedCodec := findExtendedCodec(extendedCaps.Codecs, func(c *ExtendedCodec) bool {
			return c.MimeType == codec.MimeType &&
				c.ClockRate == codec.ClockRate &&
				c.Channels == codec.Channels &&
				reflect.DeepEqual(c.LocalParameters, codec.Parameters)
		})
		if extendedCodec != nil {
			codec.PayloadType = extendedCodec.RemotePayloadType
		}
	}
}

// correctHeaderExtensionIds rebinds the header extensions to the ids of the
// remote side. Header extensions without a match are left as they are.
func correctHeaderExtensionIds(exts []RtpHeaderExtensionParameters, kind MediaKind, extendedCaps ExtendedRtpCapabilities) {
	for i, ext := range exts {
		for _, extendedExt := range extendedCaps.HeaderExtensions {
			if extendedExt.Kind == kind && extendedExt.Uri == ext.Uri {
				exts[i].Id = extendedExt.RecvId
				break
			}
		}
	}
}

func findExtendedCodec(codecs []*ExtendedCodec, match func(*ExtendedCodec) bool) *ExtendedCodec {
	for _, codec := range codecs {
		if match(codec) {
			return codec
		}
	}

	return nil
}
