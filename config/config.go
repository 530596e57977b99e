// Package config loads the daemon's settings from a config file (and CLI
// flag overrides) into a typed Config, replacing the reference's hand-rolled
// conf_lex.l/conf_parse.y parser with spf13/viper bound to spf13/pflag, the
// way the rest of this pack's daemons read their configuration.
package config

import (
	"fmt"
	"strings"

	spfpfl "github.com/spf13/pflag"
	spfvpr "github.com/spf13/viper"
)

// TypeRule is one typemap entry as read from configuration, before it is
// compiled into an internal/typemap.Rule.
type TypeRule struct {
	Pattern   string `mapstructure:"pattern"`
	ModeMask  uint32 `mapstructure:"modeMask"`
	ModeValue uint32 `mapstructure:"modeValue"`
	Type      uint16 `mapstructure:"type"`
}

// Config mirrors aund.conf's settable fields: the served root, the
// default library directory, the disc name advertised to clients, which
// transport encapsulation to speak, and the typemap rules.
type Config struct {
	Root       string     `mapstructure:"root"`
	DefaultLib string     `mapstructure:"defaultLib"`
	DiscName   string     `mapstructure:"discName"`
	Transport  string     `mapstructure:"transport"`
	PasswdFile string     `mapstructure:"passwdFile"`
	SafeHandle bool       `mapstructure:"safeHandles"`
	Debug      bool       `mapstructure:"debug"`
	Foreground bool       `mapstructure:"foreground"`
	TypeMap    []TypeRule `mapstructure:"typemap"`
}

// Default returns the settings aund.c falls back to absent a config file.
func Default() Config {
	return Config{
		Root:       "/var/aund",
		DefaultLib: "$.Library",
		DiscName:   "AUND",
		Transport:  "aun",
		SafeHandle: true,
	}
}

// RegisterFlags binds command-line overrides for every Config field onto
// flags, the same key namespace Load expects back out of viper. Flag
// defaults mirror Default() so that binding the flags (as cmd/aund
// always does) never overrides a config file's settings with a zero
// value when the user simply didn't pass that flag.
func RegisterFlags(flags *spfpfl.FlagSet) {
	d := Default()
	flags.String("config.root", d.Root, "directory tree served to clients")
	flags.String("config.defaultLib", d.DefaultLib, "library directory assigned to new sessions")
	flags.String("config.discName", d.DiscName, "disc name advertised to clients")
	flags.String("config.transport", d.Transport, "transport encapsulation: aun or beebem")
	flags.String("config.passwdFile", d.PasswdFile, "password file path (empty: anonymous single-root service)")
	flags.Bool("config.safeHandles", d.SafeHandle, "restrict handle allocation to the power-of-two-safe range")
	flags.Bool("config.debug", d.Debug, "enable verbose logging")
	flags.Bool("config.foreground", d.Foreground, "do not daemonize")
}

// Load reads path (if non-empty) into viper, merges in bound flag
// overrides, and decodes the result over Default().
func Load(path string, flags *spfpfl.FlagSet) (Config, error) {
	cfg := Default()

	v := spfvpr.New()
	v.SetEnvPrefix("AUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return cfg, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	sub := v.Sub("config")
	if sub != nil {
		if err := sub.Unmarshal(&cfg); err != nil {
			return cfg, fmt.Errorf("config: decode: %w", err)
		}
	}

	return cfg, nil
}
