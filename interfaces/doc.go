// Package interfaces defines the core types and contracts of the key-share
// custody service, separating them from their implementations.
//
// # Entities
//
// Wallet, WorkKeyShare and RecoveryKeyShare describe the server side of a
// wallet's key split. Challenge and AnonChallenge are single-use proofs of
// key possession. WalletActivation and WalletRecovery are append-only audit
// rows. Session, DeviceAndLocation and UserProfile describe the caller.
//
// # Stores
//
// Store exposes every repository contract plus Begin, which opens a
// UnitOfWork. Operations that mutate more than one entity run inside a
// single UnitOfWork.
//
// # Errors
//
// All service errors wrap one of ErrNotFound, ErrForbidden, ErrBadRequest
// or ErrUnexpected.
package interfaces
