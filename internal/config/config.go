// Package config defines the top-level CLI grammar.
package config

import (
	"github.com/hidlink/hidlink/internal/cmd"
)

// Log groups the logging flags shared by all commands.
type Log struct {
	Level   string `help:"Log level (trace, debug, info, warn, error)" enum:"trace,debug,info,warn,error" default:"info" env:"HIDLINK_LOG_LEVEL"`
	File    string `help:"Write logs to this file instead of the console"`
	RawFile string `help:"Write raw report hex dumps to this file"`
}

// CLI is the root command grammar parsed by kong.
type CLI struct {
	ConfigFile string `name:"config" help:"Path to a configuration file" type:"path"`
	Log        Log    `embed:"" prefix:"log."`

	Run    cmd.Run           `cmd:"" default:"withargs" help:"Run the bridging engine"`
	Config cmd.ConfigCommand `cmd:"" help:"Configuration utilities"`
}
