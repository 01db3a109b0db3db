// Package storage provides secret backends for small named values, such as
// the seed the backup KMS derives its signing key from.
//
// Backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/custody/secrets/
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=minio.local:9000
//   - vault://vault.example.com:8200/secret/custody?tls=false
//
// A Vault backend authenticates with VAULT_TOKEN, or with a token query
// parameter when one is given.
//
// # Redundancy
//
// StorageBackendFactory.CreateMultiBackend combines several locations.
// Fetch returns the value from the first backend that holds it; Store writes
// to every available backend and succeeds if at least one write succeeds.
//
// # Usage
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{
//	    "file:///var/lib/custody/secrets",
//	    "vault://vault.internal:8200/secret/custody",
//	})
//	seed, err := backend.Fetch(ctx, "backup-seed")
package storage
