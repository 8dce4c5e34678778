// Command sdp2rtp resolves the mediasoup RTP capabilities and parameters of a
// remote SDP and prints them as JSON.
//
//	sdp2rtp --sdp offer.sdp --kinds audio,video --pretty
//	SDP2RTP_SDP=- sdp2rtp < offer.sdp
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/notedit/sdp/transform"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	sdpbridge "github.com/jiyeyuran/mediasoup-sdp-bridge"
	"github.com/jiyeyuran/mediasoup-sdp-bridge/h264"
)

var logger = sdpbridge.NewLogger("sdp2rtp")

// Config is loaded from flags, SDP2RTP_* environment variables and an
// optional config file, in that order of precedence.
type Config struct {
	Sdp            string   `json:"sdp" yaml:"sdp" mapstructure:"sdp"`
	LocalCaps      string   `json:"local-caps" yaml:"local-caps" mapstructure:"local-caps"`
	Kinds          []string `json:"kinds" yaml:"kinds" mapstructure:"kinds"`
	Consumer       bool     `json:"consumer" yaml:"consumer" mapstructure:"consumer"`
	TemporalLayers int      `json:"temporal-layers" yaml:"temporal-layers" mapstructure:"temporal-layers"`
	Pretty         bool     `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
}

// Result is the JSON document written to stdout.
type Result struct {
	ConsumerRtpCapabilities *sdpbridge.RtpCapabilities                     `json:"consumerRtpCapabilities,omitempty"`
	ProducerRtpParameters   map[sdpbridge.MediaKind]sdpbridge.RtpParameters `json:"producerRtpParameters,omitempty"`
}

// defaultMediaCodecs are used when no local capabilities file is given.
var defaultMediaCodecs = []*sdpbridge.RtpCodecCapability{
	{
		Kind:      sdpbridge.MediaKind_Audio,
		MimeType:  "audio/opus",
		ClockRate: 48000,
		Channels:  2,
	},
	{
		Kind:      sdpbridge.MediaKind_Video,
		MimeType:  "video/VP8",
		ClockRate: 90000,
	},
	{
		Kind:      sdpbridge.MediaKind_Video,
		MimeType:  "video/H264",
		ClockRate: 90000,
		Parameters: sdpbridge.RtpCodecSpecificParameters{
			RtpParameter: h264.RtpParameter{
				LevelAsymmetryAllowed: 1,
				PacketizationMode:     1,
				ProfileLevelId:        "42e01f",
			},
		},
	},
}

func main() {
	config, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Error(err, "load config failed")
		os.Exit(2)
	}

	result, err := run(config)
	if err != nil {
		logger.Error(err, "resolve failed")
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	if config.Pretty {
		encoder.SetIndent("", "  ")
	}
	if err = encoder.Encode(result); err != nil {
		logger.Error(err, "write result failed")
		os.Exit(1)
	}
}

func loadConfig(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("sdp2rtp", pflag.ContinueOnError)
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("sdp", "", `remote SDP file, "-" reads stdin`)
	flags.String("local-caps", "", "local RtpCapabilities JSON file, defaults to opus, VP8 and H264")
	flags.StringSlice("kinds", []string{"audio", "video"}, "kinds to resolve producer RtpParameters for")
	flags.Bool("consumer", true, "resolve consumer RtpCapabilities")
	flags.Int("temporal-layers", sdpbridge.DefaultTemporalLayers, "temporal layers of rid based simulcast streams")
	flags.Bool("pretty", false, "indent JSON output")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("SDP2RTP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	if file := v.GetString("config"); len(file) > 0 {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, err
	}
	if len(config.Sdp) == 0 {
		return nil, errors.New("missing sdp, use --sdp or SDP2RTP_SDP")
	}

	return config, nil
}

func run(config *Config) (*Result, error) {
	data, err := readInput(config.Sdp)
	if err != nil {
		return nil, err
	}
	sdpObject, err := sdpbridge.ParseSdp(data)
	if err != nil {
		return nil, fmt.Errorf("parse sdp: %w", err)
	}
	localCaps, err := loadLocalCaps(config.LocalCaps)
	if err != nil {
		return nil, err
	}

	temporalLayers := config.TemporalLayers
	resolver := sdpbridge.NewResolver(
		sdpbridge.WithLogger(logger.WithName("resolver")),
		sdpbridge.WithTemporalLayers(func(sdpbridge.MediaKind, *transform.RidStruct) int {
			return temporalLayers
		}),
	)

	result := &Result{
		ProducerRtpParameters: make(map[sdpbridge.MediaKind]sdpbridge.RtpParameters),
	}
	mu := sync.Mutex{}
	group := new(errgroup.Group)

	if config.Consumer {
		group.Go(func() error {
			caps, err := resolver.ConsumerRtpCapabilities(sdpObject, localCaps)
			if err != nil {
				return err
			}
			mu.Lock()
			result.ConsumerRtpCapabilities = &caps
			mu.Unlock()
			return nil
		})
	}

	extendedCaps := sendableRtpCapabilities(sdpObject, localCaps)

	for _, kind := range config.Kinds {
		kind := sdpbridge.MediaKind(strings.TrimSpace(kind))

		if (kind == sdpbridge.MediaKind_Audio || kind == sdpbridge.MediaKind_Video) &&
			!sdpbridge.CanSend(kind, extendedCaps) {
			logger.Info("no common codec, skipping", "kind", kind)
			continue
		}

		group.Go(func() error {
			params, err := resolver.ProducerRtpParameters(sdpObject, localCaps, kind)
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			mu.Lock()
			result.ProducerRtpParameters[kind] = params
			mu.Unlock()
			return nil
		})
	}

	if err = group.Wait(); err != nil {
		return nil, err
	}

	return result, nil
}

// sendableRtpCapabilities intersects the local capabilities with those of the
// SDP to tell which kinds can be produced at all. Validation errors are left
// to the resolver.
func sendableRtpCapabilities(sdpObject *transform.SdpStruct, localCaps sdpbridge.RtpCapabilities) sdpbridge.ExtendedRtpCapabilities {
	sdpCaps := sdpbridge.ExtractRtpCapabilities(sdpObject)

	return sdpbridge.GetExtendedRtpCapabilities(localCaps, sdpCaps)
}

func loadLocalCaps(file string) (caps sdpbridge.RtpCapabilities, err error) {
	if len(file) == 0 {
		return sdpbridge.GenerateLocalRtpCapabilities(defaultMediaCodecs)
	}

	data, err := readInput(file)
	if err != nil {
		return
	}
	if err = json.Unmarshal(data, &caps); err != nil {
		return caps, fmt.Errorf("decode local caps: %w", err)
	}
	err = sdpbridge.ValidateRtpCapabilities(&caps)

	return
}

func readInput(file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(file)
}
