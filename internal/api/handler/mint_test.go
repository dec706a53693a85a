package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemint/internal/datastore"
	"telemint/internal/interfaces"
	"telemint/internal/models"
	"telemint/internal/pkg/caching"
	"telemint/internal/pkg/limiter"
	"telemint/internal/pkg/locker"
	"telemint/internal/pkg/ton_utils"
	"telemint/internal/services"
	"telemint/internal/toncenter"
)

var (
	user       = ton_utils.Address{Workchain: 0, Hash: [32]byte{0xab}}
	collection = ton_utils.Address{Workchain: 0, Hash: [32]byte{0xcd}}
)

type stubChain struct{}

func (stubChain) GetBalance(context.Context, ton_utils.Address) (uint64, error) { return 0, nil }

func (stubChain) GetWalletInfo(context.Context, ton_utils.Address) (*toncenter.WalletInfo, error) {
	return &toncenter.WalletInfo{}, nil
}

func (stubChain) RunGetMethod(_ context.Context, _ ton_utils.Address, method string, _ [][]string) (*toncenter.GetMethodResult, error) {
	if method == "get_mint_fee" {
		return &toncenter.GetMethodResult{Stack: []toncenter.StackEntry{toncenter.NumEntry(200_000_000)}}, nil
	}
	return nil, &toncenter.APIError{Status: http.StatusOK, Code: 11, Message: "exit code 11"}
}

func (stubChain) SendBoc(context.Context, []byte) error { return nil }

func (stubChain) TransactionsByMessage(context.Context, string) (int, error) { return 1, nil }

type countingLimiter struct {
	mu   sync.Mutex
	max  int
	seen map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string, _ redis_rate.Limit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[key]++
	if l.seen[key] > l.max {
		return limiter.ErrRateLimited
	}
	return nil
}

type nopNotifier struct{}

func (nopNotifier) NotifyMinted(context.Context, *models.MintRequest) error { return nil }

func newServer(t *testing.T, vs map[string]string) http.Handler {
	t.Helper()
	i := do.New()
	do.ProvideNamedValue(i, "envs", vs)
	do.Provide(i, services.NewServiceConfig)
	do.ProvideValue[interfaces.Chain](i, stubChain{})
	do.ProvideValue[interfaces.Notifier](i, nopNotifier{})
	do.ProvideValue[interfaces.Limiter](i, &countingLimiter{max: 2, seen: map[string]int{}})
	do.ProvideValue[caching.Cache](i, caching.NewCacheLocal(100, time.Minute))
	do.ProvideValue[locker.Locker](i, locker.NewLocalLocker())
	do.ProvideValue[datastore.MintRequestRepository](i, datastore.NewMemoryMintRequestRepository())
	do.ProvideValue[datastore.Journal](i, datastore.NopJournal{})
	do.Provide(i, services.NewVerifier)
	do.Provide(i, services.NewServiceFee)
	do.Provide(i, services.NewServiceMint)
	do.Provide(i, services.NewBot)
	t.Cleanup(func() {
		// nolint:errcheck
		i.Shutdown()
	})

	h, err := New(&Config{Container: i, Mode: "test", Origins: []string{"*"}})
	require.NoError(t, err)
	return h
}

func call(t *testing.T, h http.Handler, method, target, body string, header ...string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func mintBody(addr string) string {
	b, _ := json.Marshal(map[string]any{
		"txHash":      "ab" + strings.Repeat("0", 62),
		"userAddress": addr,
		"metadataUri": "ipfs://meta.json",
		"timestamp":   1700000000000,
	})
	return string(b)
}

func TestSubmitAndStatus(t *testing.T) {
	h := newServer(t, map[string]string{services.CONFIG_MINT_PROCESS_DELAY: "1h"})

	code, out := call(t, h, http.MethodPost, "/api/mint-request", mintBody(user.ToHuman(true, false)))
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, true, out["success"])
	id, _ := out["requestId"].(string)
	require.NotEmpty(t, id)

	code, out = call(t, h, http.MethodGet, "/api/mint-status/"+id, "")
	require.Equal(t, http.StatusOK, code)
	request := out["request"].(map[string]any)
	assert.Equal(t, "pending", request["status"])
	assert.Equal(t, float64(1700000000000), request["timestamp"])

	code, out = call(t, h, http.MethodGet, "/api/mints/"+user.Raw(), "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["mints"], 1)

	code, out = call(t, h, http.MethodGet, "/api/mints/all", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["mints"], 1)
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	h := newServer(t, map[string]string{})

	code, out := call(t, h, http.MethodPost, "/api/mint-request", `{"txHash":"x","userAddress":""}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, out["success"])
}

func TestSubmitOpaqueUserAddress(t *testing.T) {
	h := newServer(t, map[string]string{services.CONFIG_MINT_PROCESS_DELAY: "300ms"})

	body := `{"txHash":"submitted","userAddress":"U1","metadataUri":"ipfs://abc","timestamp":1700000000000}`
	code, out := call(t, h, http.MethodPost, "/api/mint-request", body)
	require.Equal(t, http.StatusOK, code, out)
	id, _ := out["requestId"].(string)
	require.NotEmpty(t, id)

	code, out = call(t, h, http.MethodGet, "/api/mint-status/"+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pending", out["request"].(map[string]any)["status"])

	var request map[string]any
	require.Eventually(t, func() bool {
		_, out := call(t, h, http.MethodGet, "/api/mint-status/"+id, "")
		request = out["request"].(map[string]any)
		return request["status"] == "completed"
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotNil(t, request["mintedAt"])
	assert.Equal(t, "U1", request["userAddress"])
}

func TestSubmitRateLimited(t *testing.T) {
	h := newServer(t, map[string]string{services.CONFIG_MINT_PROCESS_DELAY: "1h"})
	body := mintBody(user.Raw())
	for i := 0; i < 2; i++ {
		code, _ := call(t, h, http.MethodPost, "/api/mint-request", body)
		require.Equal(t, http.StatusOK, code)
	}
	code, out := call(t, h, http.MethodPost, "/api/mint-request", body)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, false, out["success"])
}

func TestSubmitRejectsBadInitData(t *testing.T) {
	h := newServer(t, map[string]string{services.CONFIG_BOT_TOKEN: "123:abc"})
	code, _ := call(t, h, http.MethodPost, "/api/mint-request", mintBody(user.Raw()), HeaderTelegramInitData, "user=%7B%7D&hash=00")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestStatusUnknown(t *testing.T) {
	h := newServer(t, map[string]string{})
	code, out := call(t, h, http.MethodGet, "/api/mint-status/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, out["success"])
}

func TestQuote(t *testing.T) {
	h := newServer(t, map[string]string{})

	code, _ := call(t, h, http.MethodGet, "/api/mint-quote", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, out := call(t, h, http.MethodGet, "/api/mint-quote?collection="+collection.Raw(), "")
	require.Equal(t, http.StatusOK, code)
	quote := out["quote"].(map[string]any)
	assert.Equal(t, float64(550_000_000), quote["total"])
	assert.Equal(t, services.FEE_SOURCE_CHAIN, quote["source"])
}

func TestPayload(t *testing.T) {
	h := newServer(t, map[string]string{services.CONFIG_COLLECTION_ADDRESS: collection.Raw()})

	body := `{"userAddress":"` + user.Raw() + `","metadataUri":"ipfs://meta.json"}`
	code, out := call(t, h, http.MethodPost, "/api/mint-payload", body)
	require.Equal(t, http.StatusOK, code, out)
	assert.NotEmpty(t, out["payload"])
	assert.Equal(t, float64(550_000_000), out["amount"])
	assert.Equal(t, collection.ToHuman(true, false), out["collection"])

	code, _ = call(t, h, http.MethodPost, "/api/mint-payload", `{"userAddress":"`+user.Raw()+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}
