package custodytest

import (
	"context"
	"sync"

	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"go.uber.org/atomic"
)

// InterleavedStore runs a hook between the reads a service makes on the
// root store and the transaction that follows them. The hook runs once,
// after the first wallet read returns and once the given number of work
// share loads and challenge consumes have returned as well.
type InterleavedStore struct {
	interfaces.Store

	interleave func()
	pending    *atomic.Int32
	reads      sync.WaitGroup
	once       sync.Once
}

func NewInterleavedStore(store interfaces.Store, reads int, interleave func()) *InterleavedStore {
	s := &InterleavedStore{
		Store:      store,
		interleave: interleave,
		pending:    atomic.NewInt32(int32(reads)),
	}
	s.reads.Add(reads)
	return s
}

func (s *InterleavedStore) read() {
	if s.pending.Dec() >= 0 {
		s.reads.Done()
	}
}

func (s *InterleavedStore) GetWallet(ctx context.Context, id string) (*interfaces.Wallet, error) {
	w, err := s.Store.GetWallet(ctx, id)
	s.once.Do(func() {
		s.reads.Wait()
		s.interleave()
	})
	return w, err
}

func (s *InterleavedStore) GetWorkKeyShare(ctx context.Context, userID, walletID, deviceNonce string) (*interfaces.WorkKeyShare, error) {
	share, err := s.Store.GetWorkKeyShare(ctx, userID, walletID, deviceNonce)
	s.read()
	return share, err
}

func (s *InterleavedStore) ConsumeChallenge(ctx context.Context, userID string, purpose interfaces.ChallengePurpose) (*interfaces.Challenge, error) {
	c, err := s.Store.ConsumeChallenge(ctx, userID, purpose)
	s.read()
	return c, err
}
