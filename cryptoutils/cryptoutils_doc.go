// Package cryptoutils provides key encoding helpers shared by the challenge
// protocol and the wallet services.
//
// Challenge keys come in two shapes:
//
//   - RSA (Arweave wallets, challenge version v1): a JWK JSON document or the
//     base64url modulus. The public exponent of a bare modulus is 65537.
//   - Ed25519 (Solana wallets and newer device keys, challenge version v2):
//     32 bytes encoded as base58, standard base64 or base64url.
//
// ServerPubkey wraps the PEM public key of the recovery-file signing key.
//
// Share helpers only bound the size and encoding of shares and share hashes;
// the server never combines or interprets share material.
package cryptoutils
