package main

import "time"

// Flag structs decouple cobra from command logic for testing.

type RegisterFlags struct {
	RepoPath  string
	Estimated int
	Registry  string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type UnregisterFlags struct {
	SessionID  string
	Registry   string
	APIUrl     string
	APITimeout time.Duration
}

type StatusFlags struct {
	Registry   string
	Check      bool   // enforce limits instead of the non-throwing snapshot
	Operation  string // operation label for --check
	APIUrl     string
	APITimeout time.Duration
}

type CleanupFlags struct {
	Registry   string
	APIUrl     string
	APITimeout time.Duration
}

type ServeFlags struct {
	ConfigPath    string
	Listen        string
	BasePath      string
	MetricsListen string
	Registry      string
	HistoryDSNs   []string
	LogPath       string
	LogLevel      string
}
