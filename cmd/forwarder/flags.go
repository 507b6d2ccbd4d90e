package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags overrides configuration values for the root command.
type RunFlags struct {
	StatusListen string
	LogLevel     string
	LogFormat    string
}

// PublishFlags holds flags for the publish command.
type PublishFlags struct {
	Timeout time.Duration
}

// ExtractFlags holds flags for the extract command.
type ExtractFlags struct {
	Pattern string
	Unique  bool
}
