// Package config defines the gatewaylink command line's flags, and the
// on-disk configuration file and environment variables that back them.
package config

import (
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
	"github.com/tzrikka/xdg"

	"github.com/corvidlabs/gatewaylink/internal/logger"
)

const (
	// ConfigDirName and ConfigFileName locate the app's XDG configuration
	// file, which flags fall back to reading from when neither a CLI
	// argument nor an environment variable is set.
	ConfigDirName  = "gatewaylink"
	ConfigFileName = "config.toml"
)

// Flags defines the gatewaylink command's CLI flags. Each one can also be
// set by an environment variable or an entry in the configuration file
// returned by [File].
func Flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "host",
			Usage:    "chat service host to discover the gateway endpoint on",
			Required: true,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("GATEWAYLINK_HOST"),
				toml.TOML("gateway.host", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "resumable session identifier (short UUID), generated if omitted",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("GATEWAYLINK_SESSION_ID"),
				toml.TOML("gateway.session_id", configFilePath),
			),
			Validator: validateOptionalShortUUID,
		},
		&cli.StringFlag{
			Name:  "app-client-id",
			Usage: "client ID used to sign a short-lived JWT for discovery requests",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("GATEWAYLINK_APP_CLIENT_ID"),
				toml.TOML("gateway.app_client_id", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "app-private-key",
			Usage: "PEM-encoded RSA private key file used to sign the discovery JWT",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("GATEWAYLINK_APP_PRIVATE_KEY"),
				toml.TOML("gateway.app_private_key", configFilePath),
			),
			TakesFile: true,
		},
		&cli.BoolFlag{
			Name:  "dev",
			Usage: "simple setup, but unsafe for production",
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
		},
	}
}

// File returns the path to the app's configuration file, creating an empty
// one if it doesn't already exist.
func File() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, ConfigDirName, ConfigFileName)
	if err != nil {
		logger.FatalError("failed to create config file", err)
	}
	return altsrc.StringSourcer(path)
}

// SessionID extracts the configured session ID, generating and logging a
// fresh one if none was set. Config-time diagnostics use zerolog, the same
// as the rest of this package's CLI/config layer; the gateway connection
// itself logs through log/slog once it's established.
func SessionID(l zerolog.Logger, cmd *cli.Command) string {
	id := cmd.String("session-id")
	if id == "" {
		id = shortuuid.New()
		l.Info().Str("session_id", id).Msg("generated new session ID")
	}
	return id
}

func validateOptionalShortUUID(id string) error {
	if id == "" {
		return nil
	}
	_, err := shortuuid.DefaultEncoder.Decode(id)
	return err
}

// TrimHostScheme strips any "http(s)://" prefix a user may have pasted into
// the host flag; [gateway.Discover] always connects over HTTPS.
func TrimHostScheme(host string) string {
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}
