package config

import (
	"path/filepath"
	"runtime"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// GlobalOptions are options to be applied globally and set at the root of the config.
type GlobalOptions struct {
	LogLevel   string `yaml:"log_level" cli:"level" desc:"log level (debug, info, warn, error)"`
	Colors     bool   `yaml:"colors" cli:"colors" desc:"force colored log output"`
	ConfigFile string `cli:"config" desc:"yaml file to load options from"`
}

// NewGlobalOptions creates the default global options.
func NewGlobalOptions() GlobalOptions {
	return GlobalOptions{
		LogLevel: "info",
	}
}

// Options are the options of the node.
type Options struct {
	P2PListen          string        `yaml:"listen" cli:"listen" desc:"p2p listen multiaddr"`
	InitialConnections []string      `yaml:"connect" cli:"connect" desc:"comma separated peer multiaddrs to connect to"`
	RPCListen          string        `yaml:"rpclisten" cli:"rpclisten" desc:"rpc listen multiaddr"`
	DataDir            string        `yaml:"datadir" cli:"datadir" desc:"data directory"`
	InMemory           bool          `yaml:"inmemory" cli:"inmemory" desc:"keep the chain in memory only"`
	Leader             bool          `yaml:"leader" cli:"leader" desc:"produce blocks"`
	LeadershipInterval time.Duration `yaml:"leadershipinterval" cli:"leadershipinterval" desc:"how often the leadership task wakes up"`
	TransactionExpiry  time.Duration `yaml:"txexpiry" cli:"txexpiry" desc:"how long unconfirmed transactions are kept"`
	MDNS               bool          `yaml:"mdns" cli:"mdns" desc:"discover peers on the local network"`
	NTP                bool          `yaml:"ntp" cli:"ntp" desc:"correct the clock with NTP"`
	SentryDSN          string        `yaml:"sentrydsn" cli:"sentrydsn" desc:"sentry DSN to report panics to"`
	Metrics            bool          `yaml:"metrics" cli:"metrics" desc:"collect runtime metrics"`
}

// NewOptions creates the default node options.
func NewOptions() Options {
	return Options{
		P2PListen:          "/ip4/0.0.0.0/tcp/20000",
		RPCListen:          "/ip4/127.0.0.1/tcp/20002",
		LeadershipInterval: 20 * time.Second,
		TransactionExpiry:  time.Hour,
	}
}

// Validate checks options that can't be used as they are.
func (o *Options) Validate() error {
	if o.LeadershipInterval <= 0 {
		return errors.New("leadership interval must be positive")
	}
	if o.TransactionExpiry <= 0 {
		return errors.New("transaction expiry must be positive")
	}
	return nil
}

// DataDirectory gets the expanded data directory, defaulting to the base
// directory.
func (o *Options) DataDirectory() (string, error) {
	if o.DataDir == "" {
		return GetBaseDirectory()
	}
	return homedir.Expand(o.DataDir)
}

func defaultDataPath() (path string) {
	if runtime.GOOS == "darwin" {
		return "~/Library/Application Support"
	}
	return "~"
}

func directoryName() string {
	if runtime.GOOS == "linux" {
		return ".xchain"
	}
	return "xchain"
}

// GetBaseDirectory gets the default data directory for xchain.
func GetBaseDirectory() (path string, err error) {
	path, err = homedir.Expand(filepath.Join(defaultDataPath(), directoryName()))
	if err == nil {
		path = filepath.Clean(path)
	}
	return path, err
}
