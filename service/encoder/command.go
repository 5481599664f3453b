package encoder

import (
	"fmt"
	"strings"
)

// Config controls how encoder commands are built.
type Config struct {
	FFmpeg     string `json:"ffmpeg" yaml:"ffmpeg"`
	FFprobe    string `json:"ffprobe" yaml:"ffprobe"`
	VideoCodec string `json:"videoCodec" yaml:"videoCodec"`
	Preset     string `json:"preset" yaml:"preset"`
	// HWAccel enables a hardware acceleration backend, e.g. "videotoolbox".
	HWAccel string `json:"hwAccel,omitempty" yaml:"hwAccel,omitempty"`
}

// DefaultConfig returns a portable software-encoding configuration.
func DefaultConfig() Config {
	return Config{
		FFmpeg:     "ffmpeg",
		FFprobe:    "ffprobe",
		VideoCodec: "libx264",
		Preset:     "fast",
	}
}

// encodeCommand renders the ffmpeg command line for one invocation.
func (c Config) encodeCommand(invocation *Invocation) string {
	var sb strings.Builder
	sb.WriteString(c.FFmpeg)
	sb.WriteString(" -y")
	if c.HWAccel != "" {
		sb.WriteString(" -hwaccel " + c.HWAccel)
	}
	fmt.Fprintf(&sb, " -i '%s'", invocation.InputURL)
	fmt.Fprintf(&sb, " -vf scale=%s", invocation.Resolution)
	fmt.Fprintf(&sb, " -c:v %s -b:v %s -preset %s", c.VideoCodec, invocation.Bitrate, c.Preset)

	if hdr := invocation.HDR; hdr != nil {
		fmt.Fprintf(&sb, " -metadata:s:v:0 color_primaries=%s", hdr.ColorPrimaries)
		fmt.Fprintf(&sb, " -metadata:s:v:0 transfer_characteristics=%s", hdr.TransferCharacteristics)
		fmt.Fprintf(&sb, " -metadata:s:v:0 mastering_display_color_primaries=%s", hdr.MasteringDisplayColorPrimaries)
		fmt.Fprintf(&sb, " -metadata:s:v:0 mastering_display_luminance=%s", hdr.MasteringDisplayLuminance)
	}
	if invocation.HighQualityAudio {
		sb.WriteString(" -c:a eac3")
	} else {
		sb.WriteString(" -c:a aac")
	}
	fmt.Fprintf(&sb, " '%s'", invocation.OutputURL)
	return sb.String()
}

// probeCommand renders the ffprobe command line for a source file.
func (c Config) probeCommand(URL string) string {
	return fmt.Sprintf("%s -v quiet -print_format json -show_format -show_streams '%s'", c.FFprobe, URL)
}
