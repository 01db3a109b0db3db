// Command challenge-solver signs a custody challenge the way a wallet
// client does and prints the versioned solution.
//
// User challenges need the session the challenge was issued to:
//
//	challenge-solver --challenge c.json --session s.json --share-hash <hash> --key device.key
//
// Anonymous challenges are signed over the challenge alone:
//
//	challenge-solver --anon --challenge c.json --key wallet.key
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/embedded-wallet-custody/api"
	"github.com/ruteri/embedded-wallet-custody/challenge"
	"github.com/ruteri/embedded-wallet-custody/cryptoutils"
	"github.com/urfave/cli/v2"
)

var (
	challengeFlag = &cli.StringFlag{
		Name:     "challenge",
		Usage:    "file with the challenge JSON as returned by the API",
		Required: true,
	}
	sessionFlag = &cli.StringFlag{
		Name:  "session",
		Usage: "file with the session JSON: id, ip, device_nonce, user_agent",
	}
	shareHashFlag = &cli.StringFlag{
		Name:  "share-hash",
		Usage: "device share hash, required for activation challenges",
	}
	keyFlag = &cli.StringFlag{
		Name:     "key",
		Usage:    "private key file: RSA JWK, or Ed25519 seed or key in base58/base64",
		Required: true,
	}
	anonFlag = &cli.BoolFlag{
		Name:  "anon",
		Usage: "solve an anonymous (address-scoped) challenge",
	}
)

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// unwrap accepts either the bare challenge or a {"challenge": ...} response.
func unwrap(path string, v any) error {
	var wrapped struct {
		Challenge json.RawMessage `json:"challenge"`
	}
	if err := readJSON(path, &wrapped); err == nil && len(wrapped.Challenge) > 0 {
		return json.Unmarshal(wrapped.Challenge, v)
	}
	return readJSON(path, v)
}

func solve(cCtx *cli.Context) (string, error) {
	keyData, err := os.ReadFile(cCtx.String(keyFlag.Name))
	if err != nil {
		return "", err
	}
	key, err := cryptoutils.ParsePrivateKey(keyData)
	if err != nil {
		return "", err
	}

	registry, err := challenge.DefaultRegistry()
	if err != nil {
		return "", err
	}

	if cCtx.Bool(anonFlag.Name) {
		var c api.AnonChallenge
		if err := unwrap(cCtx.String(challengeFlag.Name), &c); err != nil {
			return "", err
		}
		return registry.SolveAnonChallenge(key, c.Entity())
	}

	if !cCtx.IsSet(sessionFlag.Name) {
		return "", errors.New("--session is required for user challenges")
	}
	var c api.Challenge
	if err := unwrap(cCtx.String(challengeFlag.Name), &c); err != nil {
		return "", err
	}
	var s api.Session
	if err := readJSON(cCtx.String(sessionFlag.Name), &s); err != nil {
		return "", err
	}
	return registry.SolveChallenge(key, c.Entity(), s.Entity(), cCtx.String(shareHashFlag.Name))
}

func main() {
	app := &cli.App{
		Name:  "challenge-solver",
		Usage: "Solve a custody challenge with a local key",
		Flags: []cli.Flag{challengeFlag, sessionFlag, shareHashFlag, keyFlag, anonFlag},
		Action: func(cCtx *cli.Context) error {
			solution, err := solve(cCtx)
			if err != nil {
				return err
			}
			fmt.Println(solution)
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
