package main

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

type Config struct {
	Server Server `toml:"server"`
	Mail   Mail   `toml:"mail"`
	Board  Board  `toml:"board"`
}

type Server struct {
	Dsn                   string `toml:"dsn"`
	BulletinBoardDsn      string `toml:"bulletinBoardDsn"` // distinct DSN for the bulletin-board database
	RedisAddr             string `toml:"redisAddr"`
	EnableTrace           bool   `toml:"enableTrace"`
	TraceEndpoint         string `toml:"traceEndpoint"`
	ServerPrivate         string `toml:"serverPrivateKey"` // base64 Ed25519, see core.DecodePrivateKey
	PageTokenKey          string `toml:"pageTokenKey"`     // HMAC secret for similarity pagination tokens
	EmailProofSecret      string `toml:"emailProofSecret"` // HMAC secret for deterministic email-proof ids
	SearchCacheSize       int    `toml:"searchCacheSize"`  // default 1000, see searchcache.New
	RequireValidatedEmail bool   `toml:"requireValidatedEmail"`
}

type Mail struct {
	SMTPHost             string `toml:"smtpHost"`
	SMTPPort             int    `toml:"smtpPort"`
	Username             string `toml:"username"`
	Password             string `toml:"password"`
	FromAddr             string `toml:"fromAddr"`
	TestingEmailOverride string `toml:"testingEmailOverride"` // if set, all outbound mail is redirected here
}

// Board holds fold/publish interval settings for the background board
// loop. They are decoded from the config file but not read:
// runBoardLoop folds every 10 seconds and publishes every 2 minutes.
type Board struct {
	FoldInterval    string `toml:"foldInterval"`
	PublishInterval string `toml:"publishInterval"`
}

// Load reads a TOML config file from the given path.
func (c *Config) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open configuration file")
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(c); err != nil {
		return errors.Wrap(err, "failed to decode configuration file")
	}
	if c.Server.SearchCacheSize == 0 {
		c.Server.SearchCacheSize = 1000
	}
	return nil
}
