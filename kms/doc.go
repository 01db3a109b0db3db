// Package kms holds the backup signing key of the custody service.
//
// BackupKMS derives a P-256 key deterministically from a 32-byte seed with
// HKDF-SHA256, so every replica sharing the seed signs with the same key.
// The key signs recovery files:
//
//	signature = ECDSA-P256(SHA-256(walletId + "|" + recoveryBackupShareHash))
//
// encoded as standard base64 of the ASN.1 signature. Clients keep the
// signature with their recovery file and present it during file-based wallet
// recovery; the service verifies it before disclosing anything.
//
// The seed is loaded from a storage backend (see package storage) with
// LoadSeed. When no backend holds it, LoadSeed can generate and store one.
package kms
