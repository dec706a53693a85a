package services

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samber/do"
	"github.com/stretchr/testify/require"

	"telemint/internal/datastore"
	"telemint/internal/interfaces"
	"telemint/internal/models"
	"telemint/internal/pkg/caching"
	"telemint/internal/pkg/cell"
	"telemint/internal/pkg/locker"
	"telemint/internal/pkg/ton_utils"
	"telemint/internal/toncenter"
)

var (
	testSeed       = bytes.Repeat([]byte{7}, ed25519.SeedSize)
	testKey        = ed25519.NewKeyFromSeed(testSeed)
	testCollection = ton_utils.Address{Workchain: 0, Hash: [32]byte{0xc0, 0x11}}
	testUser       = ton_utils.Address{Workchain: 0, Hash: [32]byte{0x05, 0xe5}}
	testItem       = ton_utils.Address{Workchain: 0, Hash: [32]byte{0x17, 0xe3}}
)

var errTransport = errors.New("connection reset")

type getter func(stack [][]string) (*toncenter.GetMethodResult, error)

type fakeChain struct {
	mu sync.Mutex

	balances    map[ton_utils.Address]uint64
	balanceErrs map[ton_utils.Address]error
	getters     map[string]getter
	getterCalls map[string]int
	getterArgs  map[string][][]string
	// hang makes getters block until their context ends
	hang bool

	seqno         uint32
	deployed      bool
	walletErr     error
	sendErrs      []error
	sent          [][]byte
	advanceOnSend bool

	txCount int
	txErr   error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances:    map[ton_utils.Address]uint64{},
		balanceErrs: map[ton_utils.Address]error{},
		getters:     map[string]getter{},
		getterCalls: map[string]int{},
		getterArgs:  map[string][][]string{},
		deployed:    true,
	}
}

func (f *fakeChain) GetBalance(_ context.Context, addr ton_utils.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.balanceErrs[addr]; err != nil {
		return 0, err
	}
	return f.balances[addr], nil
}

func (f *fakeChain) GetWalletInfo(_ context.Context, addr ton_utils.Address) (*toncenter.WalletInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.walletErr != nil {
		return nil, f.walletErr
	}
	return &toncenter.WalletInfo{Balance: f.balances[addr], Seqno: f.seqno, Deployed: f.deployed}, nil
}

func (f *fakeChain) RunGetMethod(ctx context.Context, _ ton_utils.Address, method string, stack [][]string) (*toncenter.GetMethodResult, error) {
	f.mu.Lock()
	f.getterCalls[method]++
	f.getterArgs[method] = stack
	g := f.getters[method]
	hang := f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g == nil {
		return nil, &toncenter.APIError{Status: 200, Code: 11, Message: method + " exited with code 11"}
	}
	return g(stack)
}

func (f *fakeChain) SendBoc(_ context.Context, boc []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, boc)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.advanceOnSend {
		f.seqno++
		f.deployed = true
	}
	return nil
}

func (f *fakeChain) TransactionsByMessage(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txCount, f.txErr
}

func (f *fakeChain) calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getterCalls[method]
}

func (f *fakeChain) sentBocs() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func numResult(v uint64) getter {
	return func([][]string) (*toncenter.GetMethodResult, error) {
		return &toncenter.GetMethodResult{Stack: []toncenter.StackEntry{toncenter.NumEntry(v)}}, nil
	}
}

func addressResult(t *testing.T, a ton_utils.Address) getter {
	t.Helper()
	b := cell.BeginCell()
	ton_utils.StoreAddress(b, &a)
	entry, err := toncenter.CellEntry(b.MustBuild())
	require.NoError(t, err)
	return func([][]string) (*toncenter.GetMethodResult, error) {
		return &toncenter.GetMethodResult{Stack: []toncenter.StackEntry{entry}}, nil
	}
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*models.MintRequest
	err  error
}

func (n *fakeNotifier) NotifyMinted(_ context.Context, req *models.MintRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, req)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type testEnv struct {
	container *do.Injector
	chain     *fakeChain
	notifier  *fakeNotifier
	journal   datastore.Journal
}

func custodialEnvs() map[string]string {
	return map[string]string{
		CONFIG_MINT_MODE:          MINT_MODE_CUSTODIAL,
		CONFIG_WALLET_PRIVATE_KEY: hex.EncodeToString(testSeed),
		CONFIG_COLLECTION_ADDRESS: testCollection.Raw(),
		CONFIG_MINT_PROCESS_DELAY: "1h",
	}
}

func newTestEnv(t *testing.T, vs map[string]string) *testEnv {
	t.Helper()
	env := &testEnv{
		container: do.New(),
		chain:     newFakeChain(),
		notifier:  &fakeNotifier{},
		journal:   datastore.NewFileJournal(t.TempDir() + "/mint.log"),
	}
	i := env.container
	do.ProvideNamedValue(i, "envs", vs)
	do.Provide(i, NewServiceConfig)
	do.ProvideValue[interfaces.Chain](i, env.chain)
	do.ProvideValue[interfaces.Notifier](i, env.notifier)
	do.ProvideValue[caching.Cache](i, caching.NewCacheLocal(100, time.Minute))
	do.ProvideValue[locker.Locker](i, locker.NewLocalLocker())
	do.ProvideValue[datastore.MintRequestRepository](i, datastore.NewMemoryMintRequestRepository())
	do.ProvideValue[datastore.Journal](i, env.journal)
	do.Provide(i, NewVerifier)
	do.Provide(i, NewServiceFee)
	do.Provide(i, NewServiceWallet)
	do.Provide(i, NewServiceSubmitter)
	do.Provide(i, NewServiceMint)
	t.Cleanup(func() {
		// nolint:errcheck
		i.Shutdown()
	})
	return env
}

// fast shortens the submitter's timings for tests.
func fast(s *ServiceSubmitter) *ServiceSubmitter {
	s.pollInterval = 5 * time.Millisecond
	s.approvalTimeout = 2 * time.Second
	s.policy.Backoff = 10 * time.Millisecond
	return s
}
