// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

// Profile is the on-disk profile document. Sections mirror the YAML layout.
type Profile struct {
	Profile   ProfileMeta     `yaml:"profile"`
	Video     VideoConfig     `yaml:"video"`
	Audio     AudioConfig     `yaml:"audio"`
	Subtitles SubtitleConfig  `yaml:"subtitles"`
	Output    OutputConfig    `yaml:"output"`
	Download  DownloadConfig  `yaml:"download"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tools     ToolsConfig     `yaml:"tools"`
	Status    StatusConfig    `yaml:"status"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Version of the binary that loaded the profile. Not read from file.
	Version string `yaml:"-"`
}

// ProfileMeta identifies the profile.
type ProfileMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// VideoConfig holds video encoding limits.
type VideoConfig struct {
	MaxWidth    int    `yaml:"max_width"`
	MaxHeight   int    `yaml:"max_height"`
	Codec       string `yaml:"codec"`
	Profile     string `yaml:"profile"`
	Level       string `yaml:"level"`
	PixelFormat string `yaml:"pixel_format"`
	// MaxBitrate is "auto" or a number of Mbps.
	MaxBitrate string `yaml:"max_bitrate_mbps"`
	MaxFPS     int    `yaml:"max_fps"`
	Quality    int    `yaml:"quality_cq"`
	// EncoderPriority reorders or drops hardware vendors. Software is always last.
	EncoderPriority []string `yaml:"encoder_priority,omitempty"`
	ExtraArgs       []string `yaml:"extra_video_args,omitempty"`
}

// AudioConfig holds audio encoding settings.
type AudioConfig struct {
	Codec       string   `yaml:"codec"`
	BitrateKbps int      `yaml:"bitrate_kbps"`
	SampleRate  int      `yaml:"sample_rate"`
	Channels    int      `yaml:"channels"`
	ExtraArgs   []string `yaml:"extra_audio_args,omitempty"`
}

// SubtitleConfig controls subtitle passthrough.
type SubtitleConfig struct {
	Embed     bool     `yaml:"embed"`
	Languages []string `yaml:"languages,omitempty"`
}

// OutputConfig controls container and size handling.
type OutputConfig struct {
	Container        string  `yaml:"container"`
	Faststart        bool    `yaml:"faststart"`
	Dir              string  `yaml:"output_dir"`
	FilenameTemplate string  `yaml:"filename_template"`
	MaxFileSizeGB    float64 `yaml:"max_file_size_gb"`
	OnSizeExceed     string  `yaml:"on_size_exceed"`
	// TargetBitrateReduction is applied by the compress policy.
	TargetBitrateReduction float64 `yaml:"target_bitrate_reduction"`
}

// DownloadConfig controls the acquisition tool and batch concurrency.
type DownloadConfig struct {
	RateLimitMbps   float64 `yaml:"rate_limit_mbps,omitempty"`
	Retries         int     `yaml:"retries"`
	FragmentRetries int     `yaml:"fragment_retries"`
	// StartsPerMinute paces acquisition starts in batch mode. 0 disables pacing.
	StartsPerMinute int `yaml:"starts_per_minute"`
	// Concurrency caps parallel jobs in batch mode; 0 uses the encoder's session limit.
	Concurrency int `yaml:"concurrency"`

	// Playlist range used by playlist mode: 1-based, inclusive, end 0 = last.
	PlaylistStart   int  `yaml:"playlist_start"`
	PlaylistEnd     int  `yaml:"playlist_end,omitempty"`
	PlaylistReverse bool `yaml:"playlist_reverse,omitempty"`
}

// LoggingConfig mirrors log.Config.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	File           string `yaml:"file,omitempty"`
	RotationSizeMB int    `yaml:"rotation_size_mb"`
	RotationCount  int    `yaml:"rotation_count"`
}

// ToolsConfig locates external binaries and the state directory.
type ToolsConfig struct {
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
	YtDlp   string `yaml:"ytdlp"`
	DataDir string `yaml:"data_dir"`
}

// StatusConfig enables the local /metrics and /healthz listener.
type StatusConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate"`
}
