// Package media drives the external ffmpeg and ffprobe binaries: probing
// uploaded scene videos, cutting slot clips and enumerating capture
// devices.
package media

import "time"

type ProbeResult struct {
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	VideoCodec string  `json:"videoCodec,omitempty"`
	AudioCodec string  `json:"audioCodec,omitempty"`
	FrameRate  float64 `json:"frameRate"`
	Bitrate    int64   `json:"bitrate"`
}

// RunResult is the structured outcome of one ffmpeg/ffprobe invocation.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// BinaryInfo is the availability of one external executable.
type BinaryInfo struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities reports what the installed media tools can do.
type Capabilities struct {
	FFmpeg   BinaryInfo `json:"ffmpeg"`
	FFprobe  BinaryInfo `json:"ffprobe"`
	ProbedAt time.Time  `json:"probedAt"`
}

// CanCut reports whether clips can be generated.
func (c *Capabilities) CanCut() bool {
	return c.FFmpeg.Available && c.FFprobe.Available
}

// Device is a camera the workstation exposes.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// ffprobeOutput mirrors the parts of `ffprobe -print_format json` we read.
type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}
