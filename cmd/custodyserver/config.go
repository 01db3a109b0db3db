package main

import (
	"errors"
	"os"
	"strings"

	"github.com/ruteri/embedded-wallet-custody/cmd/flags"
	"github.com/ruteri/embedded-wallet-custody/config"
	"github.com/urfave/cli/v2"
)

var (
	ListenAddrFlag = &cli.StringFlag{
		Name:    "listen-addr",
		Value:   "127.0.0.1:8080",
		Usage:   "address to listen on for API",
		EnvVars: flags.EnvVar("listen-addr"),
	}
	DBDirFlag = &cli.StringFlag{
		Name:    "db-dir",
		Value:   "./data",
		Usage:   "directory of the SQLite database, or ':memory:' for an ephemeral one",
		EnvVars: flags.EnvVar("db-dir"),
	}
	EnvironmentFlag = &cli.StringFlag{
		Name:    "environment",
		Value:   string(config.EnvProduction),
		Usage:   "deployment environment: development, test or production",
		EnvVars: flags.EnvVar("environment"),
	}
	ChallengeTTLFlag = &cli.DurationFlag{
		Name:    "challenge-ttl",
		Value:   config.Default().ChallengeTTL,
		Usage:   "maximum age of a challenge when it is solved",
		EnvVars: flags.EnvVar("challenge-ttl"),
	}
	ShareActiveTTLFlag = &cli.DurationFlag{
		Name:    "share-active-ttl",
		Value:   config.Default().ShareActiveTTL,
		Usage:   "work share age after which activation requests a rotation",
		EnvVars: flags.EnvVar("share-active-ttl"),
	}
	ShareInactiveTTLFlag = &cli.DurationFlag{
		Name:    "share-inactive-ttl",
		Value:   config.Default().ShareInactiveTTL,
		Usage:   "work share age after which the share is invalidated",
		EnvVars: flags.EnvVar("share-inactive-ttl"),
	}
	ShareMaxRotationIgnoresFlag = &cli.IntFlag{
		Name:    "share-max-rotation-ignores",
		Value:   config.Default().ShareMaxRotationIgnores,
		Usage:   "activations that may ignore a rotation request before the share is invalidated",
		EnvVars: flags.EnvVar("share-max-rotation-ignores"),
	}
	PreferredDeviceKeyVersionFlag = &cli.StringFlag{
		Name:    "preferred-device-key-version",
		Value:   config.Default().PreferredDeviceKeyVersion,
		Usage:   "challenge version device keys are rotated to",
		EnvVars: flags.EnvVar("preferred-device-key-version"),
	}
	AllowHashChallengesFlag = &cli.BoolFlag{
		Name:    "allow-hash-challenges",
		Usage:   "accept digest challenges (never in production)",
		EnvVars: flags.EnvVar("allow-hash-challenges"),
	}
	CleanupIntervalFlag = &cli.DurationFlag{
		Name:    "cleanup-interval",
		Value:   config.Default().CleanupInterval,
		Usage:   "reaper interval, 0 disables it",
		EnvVars: flags.EnvVar("cleanup-interval"),
	}
	DeviceLocationRetentionFlag = &cli.DurationFlag{
		Name:    "device-location-retention",
		Value:   config.Default().DeviceLocationRetention,
		Usage:   "minimum age of unreferenced device and location rows before they are reaped",
		EnvVars: flags.EnvVar("device-location-retention"),
	}
	IdentitySecretFileFlag = &cli.StringFlag{
		Name:     "identity-secret-file",
		Usage:    "file holding the HS256 secret of identity provider tokens",
		Required: true,
		EnvVars:  flags.EnvVar("identity-secret-file"),
	}
	IdentityIssuerFlag = &cli.StringFlag{
		Name:    "identity-issuer",
		Usage:   "expected iss claim of identity provider tokens",
		EnvVars: flags.EnvVar("identity-issuer"),
	}
	BackupSeedURIFlag = &cli.StringSliceFlag{
		Name:     "backup-seed-uri",
		Usage:    "secret backend holding the recovery-file signing seed (file://, s3://, vault://); repeat for fallbacks",
		Required: true,
		EnvVars:  flags.EnvVar("backup-seed-uri"),
	}
	BackupSeedInitFlag = &cli.BoolFlag{
		Name:    "backup-seed-init",
		Usage:   "generate and store the backup seed if no backend holds one",
		EnvVars: flags.EnvVar("backup-seed-init"),
	}
	CleanupWorkersFlag = &cli.IntFlag{
		Name:    "cleanup-workers",
		Value:   2,
		Usage:   "workers running best-effort cleanup tasks",
		EnvVars: flags.EnvVar("cleanup-workers"),
	}
)

var serverFlags = []cli.Flag{
	ListenAddrFlag,
	DBDirFlag,
	EnvironmentFlag,
	ChallengeTTLFlag,
	ShareActiveTTLFlag,
	ShareInactiveTTLFlag,
	ShareMaxRotationIgnoresFlag,
	PreferredDeviceKeyVersionFlag,
	AllowHashChallengesFlag,
	CleanupIntervalFlag,
	DeviceLocationRetentionFlag,
	IdentitySecretFileFlag,
	IdentityIssuerFlag,
	BackupSeedURIFlag,
	BackupSeedInitFlag,
	CleanupWorkersFlag,
	flags.LogServiceFlagFn("custody"),
}

func configFromFlags(cCtx *cli.Context) (*config.Config, error) {
	cfg := &config.Config{
		Environment:               config.Environment(cCtx.String(EnvironmentFlag.Name)),
		ChallengeTTL:              cCtx.Duration(ChallengeTTLFlag.Name),
		ShareActiveTTL:            cCtx.Duration(ShareActiveTTLFlag.Name),
		ShareInactiveTTL:          cCtx.Duration(ShareInactiveTTLFlag.Name),
		ShareMaxRotationIgnores:   cCtx.Int(ShareMaxRotationIgnoresFlag.Name),
		PreferredDeviceKeyVersion: cCtx.String(PreferredDeviceKeyVersionFlag.Name),
		AllowHashChallenges:       cCtx.Bool(AllowHashChallengesFlag.Name),
		CleanupInterval:           cCtx.Duration(CleanupIntervalFlag.Name),
		DeviceLocationRetention:   cCtx.Duration(DeviceLocationRetentionFlag.Name),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readIdentitySecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return nil, errors.New("identity secret file is empty")
	}
	return []byte(secret), nil
}
