package config

import (
	"time"

	"github.com/namsral/flag"
)

// EnvPrefix is prepended to flag names to form environment variable names,
// e.g. -feed-url is also read from PGNRELAY_FEED_URL.
const EnvPrefix = "PGNRELAY"

// Flags holds the command line flags shared by the commands. A flag that
// is set, on the command line or in the environment, overrides the value
// from the config file.
type Flags struct {
	fs *flag.FlagSet

	path        string
	feedURL     string
	delay       int
	lenient     bool
	plyCount    bool
	archivePath string
	natsURL     string
	subject     string
	logLevel    string
	logPath     string
	dev         bool
}

// NewFlags creates the flag set of a command.
func NewFlags(name string) *Flags {
	f := &Flags{fs: flag.NewFlagSetWithEnvPrefix(name, EnvPrefix, flag.ContinueOnError)}
	def := DefaultConfig()

	f.fs.StringVar(&f.path, "config-file", "", "path to a JSON config file")
	f.fs.StringVar(&f.feedURL, "feed-url", def.Feed.BaseURL, "base URL of the live feed")
	f.fs.IntVar(&f.delay, "delay", def.Replay.DelayMinutes, "broadcast delay in minutes")
	f.fs.BoolVar(&f.lenient, "lenient", def.Replay.Lenient, "accept non-standard move notation")
	f.fs.BoolVar(&f.plyCount, "ply-count", def.Replay.PlyCount, "write the PlyCount tag")
	f.fs.StringVar(&f.archivePath, "archive", def.Archive.DBPath, "path to the snapshot archive (empty disables it)")
	f.fs.StringVar(&f.natsURL, "nats-url", def.Relay.NatsURL, "NATS server to relay replay events to (empty disables it)")
	f.fs.StringVar(&f.subject, "subject-prefix", def.Relay.SubjectPrefix, "NATS subject prefix")
	f.fs.StringVar(&f.logLevel, "log-level", def.Interface.LogLevel, "log level: debug, info, warn, error")
	f.fs.StringVar(&f.logPath, "log-path", def.Interface.LogPath, "also write logs to this file")
	f.fs.BoolVar(&f.dev, "dev", def.Interface.Development, "human readable console logs")
	return f
}

// FlagSet exposes the underlying set so commands can add their own flags.
func (f *Flags) FlagSet() *flag.FlagSet {
	return f.fs
}

// Parse parses args, loads the config file if one was given, applies the
// flags that were set and validates the result.
func (f *Flags) Parse(args []string) (*Config, error) {
	if err := f.fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if f.path != "" {
		loaded, err := Load(f.path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "feed-url":
			cfg.Feed.BaseURL = f.feedURL
		case "delay":
			cfg.Replay.DelayMinutes = f.delay
		case "lenient":
			cfg.Replay.Lenient = f.lenient
		case "ply-count":
			cfg.Replay.PlyCount = f.plyCount
		case "archive":
			cfg.Archive.DBPath = f.archivePath
		case "nats-url":
			cfg.Relay.NatsURL = f.natsURL
		case "subject-prefix":
			cfg.Relay.SubjectPrefix = f.subject
		case "log-level":
			cfg.Interface.LogLevel = f.logLevel
		case "log-path":
			cfg.Interface.LogPath = f.logPath
		case "dev":
			cfg.Interface.Development = f.dev
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Timeout returns the feed request timeout.
func (c *FeedConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryDelay returns the base backoff delay of feed requests.
func (c *FeedConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}
