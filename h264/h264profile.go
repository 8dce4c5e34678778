// Package h264 parses and negotiates the H264 profile-level-id fmtp parameter
// (RFC 6184 section 8.1).
package h264

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Profiles.
const (
	ProfileConstrainedBaseline byte = 1
	ProfileBaseline            byte = 2
	ProfileMain                byte = 3
	ProfileConstrainedHigh     byte = 4
	ProfileHigh                byte = 5
)

// Levels. All values are ten times the level number, except level 1b.
const (
	Level1_b byte = 0
	Level1   byte = 10
	Level1_1 byte = 11
	Level1_2 byte = 12
	Level1_3 byte = 13
	Level2   byte = 20
	Level2_1 byte = 21
	Level2_2 byte = 22
	Level3   byte = 30
	Level3_1 byte = 31
	Level3_2 byte = 32
	Level4   byte = 40
	Level4_1 byte = 41
	Level4_2 byte = 42
	Level5   byte = 50
	Level5_1 byte = 51
	Level5_2 byte = 52
)

// constraintSet3Flag tells level 1b from level 1.1 when level_idc is 11 and
// profile_idc is 0x42, 0x4D or 0x58.
const constraintSet3Flag byte = 0x10

var (
	errInvalidLocalProfileLevelId  = errors.New("invalid local profile-level-id")
	errInvalidRemoteProfileLevelId = errors.New("invalid remote profile-level-id")
	errProfileMismatch             = errors.New("H264 profile mismatch")
)

// RtpParameter holds the H264 fmtp parameters taking part in negotiation.
type RtpParameter struct {
	PacketizationMode     int    `json:"packetization-mode,omitempty"`
	ProfileLevelId        string `json:"profile-level-id,omitempty"`
	LevelAsymmetryAllowed int    `json:"level-asymmetry-allowed,omitempty"`
}

type ProfileLevelId struct {
	Profile byte
	Level   byte
}

func NewProfileLevelId(profile, level byte) ProfileLevelId {
	return ProfileLevelId{
		Profile: profile,
		Level:   level,
	}
}

// DefaultProfileLevelId is assumed when the profile-level-id parameter is
// absent. RFC 6184 says Baseline level 1, but WebRTC endpoints have always
// used ConstrainedBaseline level 3.1 (crbug/webrtc/6337).
var DefaultProfileLevelId = ProfileLevelId{
	Profile: ProfileConstrainedBaseline,
	Level:   Level3_1,
}

// String returns the canonical three hex bytes form, or "" when the
// combination cannot be represented.
func (p ProfileLevelId) String() string {
	if p.Level == Level1_b {
		switch p.Profile {
		case ProfileConstrainedBaseline:
			return "42f00b"
		case ProfileBaseline:
			return "42100b"
		case ProfileMain:
			return "4d100b"
		default:
			return ""
		}
	}

	var profileIdcIop string

	switch p.Profile {
	case ProfileConstrainedBaseline:
		profileIdcIop = "42e0"
	case ProfileBaseline:
		profileIdcIop = "4200"
	case ProfileMain:
		profileIdcIop = "4d00"
	case ProfileConstrainedHigh:
		profileIdcIop = "640c"
	case ProfileHigh:
		profileIdcIop = "6400"
	default:
		return ""
	}

	return fmt.Sprintf("%s%02x", profileIdcIop, p.Level)
}

// bitPattern matches bytes against patterns such as "x1xx0000", where "x"
// is either 0 or 1.
type bitPattern struct {
	mask        byte
	maskedValue byte
}

func newBitPattern(str string) bitPattern {
	return bitPattern{
		mask:        math.MaxUint8 - byteMaskString('x', str),
		maskedValue: byteMaskString('1', str),
	}
}

func (b bitPattern) isMatch(value byte) bool {
	return b.maskedValue == (value & b.mask)
}

type profilePattern struct {
	profileIdc byte
	profileIop bitPattern
	profile    byte
}

// profilePatterns maps profile_idc/profile_iop to a profile, see RFC 6184
// section 8.1.
var profilePatterns = []profilePattern{
	{0x42, newBitPattern("x1xx0000"), ProfileConstrainedBaseline},
	{0x4D, newBitPattern("1xxx0000"), ProfileConstrainedBaseline},
	{0x58, newBitPattern("11xx0000"), ProfileConstrainedBaseline},
	{0x42, newBitPattern("x0xx0000"), ProfileBaseline},
	{0x58, newBitPattern("10xx0000"), ProfileBaseline},
	{0x4D, newBitPattern("0x0x0000"), ProfileMain},
	{0x64, newBitPattern("00000000"), ProfileHigh},
	{0x64, newBitPattern("00001100"), ProfileConstrainedHigh},
}

// ParseProfileLevelId parses a profile-level-id made of three hex bytes. It
// returns nil when the value is not a known profile and level.
func ParseProfileLevelId(str string) *ProfileLevelId {
	if len(str) != 6 {
		return nil
	}
	numeric, err := strconv.ParseUint(str, 16, 32)
	if err != nil || numeric == 0 {
		return nil
	}

	levelIdc := byte(numeric & 0xFF)
	profileIop := byte(numeric >> 8 & 0xFF)
	profileIdc := byte(numeric >> 16 & 0xFF)

	var level byte

	switch levelIdc {
	case Level1_1:
		if profileIop&constraintSet3Flag != 0 {
			level = Level1_b
		} else {
			level = Level1_1
		}
	case Level1, Level1_2, Level1_3, Level2, Level2_1, Level2_2,
		Level3, Level3_1, Level3_2, Level4, Level4_1, Level4_2,
		Level5, Level5_1, Level5_2:
		level = levelIdc
	default:
		return nil
	}

	for _, pattern := range profilePatterns {
		if profileIdc == pattern.profileIdc && pattern.profileIop.isMatch(profileIop) {
			return &ProfileLevelId{
				Profile: pattern.profile,
				Level:   level,
			}
		}
	}

	return nil
}

// ParseSdpProfileLevelId is ParseProfileLevelId with DefaultProfileLevelId
// for an empty value.
func ParseSdpProfileLevelId(str string) *ProfileLevelId {
	if len(str) == 0 {
		profileLevelId := DefaultProfileLevelId
		return &profileLevelId
	}
	return ParseProfileLevelId(str)
}

// IsSameProfile reports whether both profile-level-id values are valid and
// carry the same profile, whatever the level.
func IsSameProfile(profileLevelId1, profileLevelId2 string) bool {
	p1 := ParseSdpProfileLevelId(profileLevelId1)
	p2 := ParseSdpProfileLevelId(profileLevelId2)

	return p1 != nil && p2 != nil && p1.Profile == p2.Profile
}

// GenerateProfileLevelIdForAnswer returns the profile-level-id to answer with,
// given the locally supported and the remotely offered parameters. Both must
// have the same profile. The level is the local one when both sides allow level
// asymmetry, and the lowest of both otherwise. It returns "" when neither side
// has a profile-level-id.
func GenerateProfileLevelIdForAnswer(localSupportedParams, remoteOfferedParams RtpParameter) (string, error) {
	if len(localSupportedParams.ProfileLevelId) == 0 &&
		len(remoteOfferedParams.ProfileLevelId) == 0 {
		return "", nil
	}

	local := ParseSdpProfileLevelId(localSupportedParams.ProfileLevelId)
	if local == nil {
		return "", errInvalidLocalProfileLevelId
	}
	remote := ParseSdpProfileLevelId(remoteOfferedParams.ProfileLevelId)
	if remote == nil {
		return "", errInvalidRemoteProfileLevelId
	}
	if local.Profile != remote.Profile {
		return "", errProfileMismatch
	}

	levelAsymmetryAllowed := localSupportedParams.LevelAsymmetryAllowed > 0 &&
		remoteOfferedParams.LevelAsymmetryAllowed > 0

	answerLevel := minLevel(local.Level, remote.Level)
	if levelAsymmetryAllowed {
		answerLevel = local.Level
	}

	return NewProfileLevelId(local.Profile, answerLevel).String(), nil
}

// byteMaskString sets the bits of the positions of str holding c, e.g.
// c = 'x' and str = "x1xx0000" give 0b10110000.
func byteMaskString(c byte, str string) (mask byte) {
	length := len(str)

	for i := 0; i < length; i++ {
		if str[i] == c {
			mask |= 1 << uint(length-1-i)
		}
	}

	return
}

// isLessLevel compares levels, level 1b sitting between 1 and 1.1.
func isLessLevel(a, b byte) bool {
	if a == Level1_b {
		return b != Level1 && b != Level1_b
	}
	if b == Level1_b {
		return a != Level1
	}
	return a < b
}

func minLevel(a, b byte) byte {
	if isLessLevel(a, b) {
		return a
	}
	return b
}
