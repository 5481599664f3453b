package model

import (
	"fmt"
	"strconv"
	"strings"
)

// HDRMetadata carries the colour metadata attached to high dynamic range
// renditions.
type HDRMetadata struct {
	ColorPrimaries                 string `json:"colorPrimaries" yaml:"colorPrimaries"`
	TransferCharacteristics        string `json:"transferCharacteristics" yaml:"transferCharacteristics"`
	MasteringDisplayColorPrimaries string `json:"masteringDisplayColorPrimaries" yaml:"masteringDisplayColorPrimaries"`
	MasteringDisplayLuminance      string `json:"masteringDisplayLuminance" yaml:"masteringDisplayLuminance"`
}

// Profile represents one quality rung: a target resolution and bitrate with
// optional HDR metadata.
type Profile struct {
	Bitrate    string       `json:"bitrate" yaml:"bitrate"`
	Resolution string       `json:"resolution" yaml:"resolution"`
	HDR        *HDRMetadata `json:"hdr,omitempty" yaml:"hdr,omitempty"`
}

// Size parses the profile resolution into width and height.
func (p Profile) Size() (width, height int, err error) {
	parts := strings.Split(p.Resolution, "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q", p.Resolution)
	}
	if width, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("invalid resolution %q: %w", p.Resolution, err)
	}
	if height, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("invalid resolution %q: %w", p.Resolution, err)
	}
	return width, height, nil
}

// TargetResolution resolves the encode resolution for a source of the given
// dimensions. Landscape sources use the profile resolution as-is; portrait
// sources hold the profile height and scale the width to preserve the source
// aspect ratio.
func (p Profile) TargetResolution(sourceWidth, sourceHeight int) (string, error) {
	_, targetHeight, err := p.Size()
	if err != nil {
		return "", err
	}
	if sourceHeight <= sourceWidth || sourceHeight == 0 {
		return p.Resolution, nil
	}
	targetWidth := sourceWidth * targetHeight / sourceHeight
	// Encoders require even dimensions.
	if targetWidth%2 != 0 {
		targetWidth++
	}
	return fmt.Sprintf("%dx%d", targetWidth, targetHeight), nil
}

// hdr2020 is the metadata set used by the top 4K rung.
func hdr2020() *HDRMetadata {
	return &HDRMetadata{
		ColorPrimaries:                 "bt2020",
		TransferCharacteristics:        "smpte2084",
		MasteringDisplayColorPrimaries: "bt2020",
		MasteringDisplayLuminance:      "1000",
	}
}

// DefaultLandscapeProfiles returns the built-in rendition ladder for
// landscape sources, from 144p up to HDR 4K.
func DefaultLandscapeProfiles() []Profile {
	return []Profile{
		{Bitrate: "150k", Resolution: "256x144"},
		{Bitrate: "200k", Resolution: "426x240"},
		{Bitrate: "300k", Resolution: "640x360"},
		{Bitrate: "500k", Resolution: "854x480"},
		{Bitrate: "1000k", Resolution: "1280x720"},
		{Bitrate: "2000k", Resolution: "1920x1080"},
		{Bitrate: "4000k", Resolution: "2560x1440"},
		{Bitrate: "6000k", Resolution: "3840x2160", HDR: hdr2020()},
	}
}

// DefaultPortraitProfiles returns the built-in rendition ladder for portrait
// sources. The rungs mirror the landscape ladder; the width is rescaled per
// source via TargetResolution.
func DefaultPortraitProfiles() []Profile {
	return DefaultLandscapeProfiles()
}
