package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/do"

	"telemint/internal/datastore"
	"telemint/internal/interfaces"
	"telemint/internal/log"
	"telemint/internal/models"
	"telemint/internal/pkg/cell"
	"telemint/internal/pkg/payload"
	"telemint/internal/pkg/ton_utils"
	"telemint/internal/toncenter"
)

var errAlreadyTerminal = errors.New("request already terminal")

const notifyTimeout = 15 * time.Second

// MintPayload is everything a client wallet needs to send the mint itself.
type MintPayload struct {
	Payload    string           `json:"payload"`
	Amount     uint64           `json:"amount"`
	Collection string           `json:"collection"`
	ValidUntil int64            `json:"validUntil"`
	Quote      *models.FeeQuote `json:"quote"`
}

type ServiceMint struct {
	config   *ServiceConfig
	repo     datastore.MintRequestRepository
	journal  datastore.Journal
	verifier Verifier
	chain    interfaces.Chain
	notifier interfaces.Notifier
	fee      *ServiceFee

	// custodial mode only
	wallet    *ServiceWallet
	submitter *ServiceSubmitter
	signer    Signer

	logger     zerolog.Logger
	now        func() time.Time
	processing sync.Map
	wg         sync.WaitGroup
	mu         sync.Mutex
	closed     bool
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewServiceMint(container *do.Injector) (*ServiceMint, error) {
	config, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}

	repo, err := do.Invoke[datastore.MintRequestRepository](container)
	if err != nil {
		return nil, err
	}

	journal, err := do.Invoke[datastore.Journal](container)
	if err != nil {
		return nil, err
	}

	verifier, err := do.Invoke[Verifier](container)
	if err != nil {
		return nil, err
	}

	chain, err := do.Invoke[interfaces.Chain](container)
	if err != nil {
		return nil, err
	}

	notifier, err := do.Invoke[interfaces.Notifier](container)
	if err != nil {
		return nil, err
	}

	fee, err := do.Invoke[*ServiceFee](container)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	service := &ServiceMint{
		config:   config,
		repo:     repo,
		journal:  journal,
		verifier: verifier,
		chain:    chain,
		notifier: notifier,
		fee:      fee,
		logger:   log.Mint,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}

	if config.Mode == MINT_MODE_CUSTODIAL {
		if service.wallet, err = do.Invoke[*ServiceWallet](container); err != nil {
			cancel()
			return nil, err
		}
		if service.submitter, err = do.Invoke[*ServiceSubmitter](container); err != nil {
			cancel()
			return nil, err
		}
		service.signer = NewKeySigner(config.PrivateKey)
	}
	return service, nil
}

// Submit records a new pending request and schedules its processing.
func (service *ServiceMint) Submit(ctx context.Context, input models.MintRequestInput) (*models.MintRequest, error) {
	input.TxHash = strings.TrimSpace(input.TxHash)
	input.UserAddress = strings.TrimSpace(input.UserAddress)
	input.MetadataURI = strings.TrimSpace(input.MetadataURI)
	switch {
	case input.TxHash == "":
		return nil, fmt.Errorf("%w: txHash is required", ErrInvalidArgument)
	case input.UserAddress == "":
		return nil, fmt.Errorf("%w: userAddress is required", ErrInvalidArgument)
	case input.MetadataURI == "":
		return nil, fmt.Errorf("%w: metadataUri is required", ErrInvalidArgument)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := service.now().UTC()
	req := &models.MintRequest{
		ID:             id.String(),
		TxHash:         input.TxHash,
		UserAddress:    input.UserAddress,
		MetadataURI:    input.MetadataURI,
		Status:         models.MintStatusPending,
		Timestamp:      input.Timestamp,
		CreatedAt:      now,
		TelegramUserID: input.TelegramUserID,
	}
	if req.Timestamp == 0 {
		req.Timestamp = now.UnixMilli()
	}

	if service.config.Collection != nil {
		index, addr, err := service.PredictItem(ctx, *service.config.Collection)
		if err != nil {
			service.logger.Warn().Err(err).Msg("item address prediction failed")
		} else {
			req.PredictedItemIndex = &index
			req.PredictedItemAddress = service.config.Human(addr)
		}
	}

	if err := service.repo.Insert(ctx, req); err != nil {
		return nil, err
	}
	service.logger.Info().Str("id", req.ID).Str("user", req.UserAddress).Msg("mint request accepted")

	service.schedule(req.ID)
	return req, nil
}

func (service *ServiceMint) schedule(id string) {
	started := service.spawn(func() {
		timer := time.NewTimer(service.config.ProcessDelay)
		defer timer.Stop()
		select {
		case <-service.ctx.Done():
			return
		case <-timer.C:
		}
		// started work runs to completion even when shutting down
		if _, err := service.Process(context.Background(), id); err != nil {
			service.logger.Error().Err(err).Str("id", id).Msg("processing failed")
		}
	})
	if !started {
		service.logger.Warn().Str("id", id).Msg("shutting down, request left pending")
	}
}

// spawn runs fn on a goroutine tracked by Wait and Shutdown. It reports false
// once Shutdown has begun.
func (service *ServiceMint) spawn(fn func()) bool {
	service.mu.Lock()
	defer service.mu.Unlock()
	if service.closed {
		return false
	}
	service.wg.Add(1)
	go func() {
		defer service.wg.Done()
		fn()
	}()
	return true
}

// claim marks id as being worked on. The returned release must be called
// once the work is done.
func (service *ServiceMint) claim(id string) (release func(), ok bool) {
	if _, busy := service.processing.LoadOrStore(id, struct{}{}); busy {
		return nil, false
	}
	return func() { service.processing.Delete(id) }, true
}

func (service *ServiceMint) Get(ctx context.Context, id string) (*models.MintRequest, error) {
	return service.repo.Get(ctx, id)
}

// List returns the requests of userAddress, or every request for "all".
func (service *ServiceMint) List(ctx context.Context, userAddress string) ([]*models.MintRequest, error) {
	return service.repo.List(ctx, userAddress)
}

// Process moves a pending request to its terminal state. Processing a
// terminal request, or one already being processed, returns its current
// state unchanged.
func (service *ServiceMint) Process(ctx context.Context, id string) (*models.MintRequest, error) {
	release, ok := service.claim(id)
	if !ok {
		return service.repo.Get(ctx, id)
	}
	defer release()

	// read under the claim so an expiry that landed first is seen
	req, err := service.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return req, nil
	}

	result := mintResult{}
	err = service.verifier.Verify(ctx, req)
	if err == nil && service.config.Mode == MINT_MODE_CUSTODIAL {
		result, err = service.mint(ctx, req)
	}
	if err != nil {
		service.logger.Warn().Err(err).Str("id", id).Msg("mint failed")
		return service.finish(ctx, id, func(r *models.MintRequest) {
			r.Status = models.MintStatusFailed
			r.Error = UserMessage(err)
			r.MintTxHash = result.txHash
		})
	}
	return service.finish(ctx, id, func(r *models.MintRequest) {
		minted := service.now().UTC()
		r.Status = models.MintStatusCompleted
		r.MintedAt = &minted
		r.MintTxHash = result.txHash
		r.ConfirmedItemAddress = result.itemAddress
	})
}

// finish applies a terminal transition once, journals it and fires the
// notification.
func (service *ServiceMint) finish(ctx context.Context, id string, apply func(r *models.MintRequest)) (*models.MintRequest, error) {
	req, err := service.repo.Update(ctx, id, func(r *models.MintRequest) error {
		if r.Status.Terminal() {
			return errAlreadyTerminal
		}
		apply(r)
		return nil
	})
	if errors.Is(err, errAlreadyTerminal) {
		return service.repo.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if err := service.journal.Append(ctx, req); err != nil {
		service.logger.Error().Err(fmt.Errorf("%w: %w", ErrPersistence, err)).Str("id", id).Msg("journal append failed")
	}
	service.logger.Info().Str("id", id).Str("status", string(req.Status)).Str("error", req.Error).Msg("mint request finished")

	if req.Status == models.MintStatusCompleted {
		snapshot := req.Clone()
		if !service.spawn(func() { service.notify(snapshot) }) {
			service.notify(snapshot)
		}
	}
	return req, nil
}

func (service *ServiceMint) notify(req *models.MintRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := service.notifier.NotifyMinted(ctx, req); err != nil {
		service.logger.Warn().Err(err).Str("id", req.ID).Msg("notification failed")
	}
}

type mintResult struct {
	txHash      string
	itemAddress string
}

// mint runs the custodial pipeline: payload, fee, account, submission.
func (service *ServiceMint) mint(ctx context.Context, req *models.MintRequest) (mintResult, error) {
	collection := *service.config.Collection
	body, err := payload.NftMint(req.UserAddress, req.MetadataURI)
	if err != nil {
		return mintResult{}, err
	}
	quote, err := service.fee.ResolveRequiredValue(ctx, collection)
	if err != nil {
		return mintResult{}, err
	}
	account, err := service.wallet.SelectSigningAccount(ctx, service.signer.PublicKey())
	if err != nil {
		return mintResult{}, err
	}
	if account.BalanceError == "" && account.Balance < quote.Total {
		return mintResult{}, fmt.Errorf("%w: %s holds %s, mint needs %s", ErrInsufficientBalance,
			account.Human, ton_utils.FormatTON(account.Balance), ton_utils.FormatTON(quote.Total))
	}

	sub, err := service.submitter.Submit(ctx, service.signer, account, &payload.Message{
		Destination: collection,
		Amount:      quote.Total,
		Bounce:      true,
		Payload:     body,
	})
	if err != nil {
		return mintResult{txHash: sub.MessageHash}, err
	}

	result := mintResult{txHash: sub.MessageHash}
	addr, err := service.confirmedItem(ctx, collection, req.PredictedItemIndex)
	if err != nil {
		service.logger.Warn().Err(err).Str("id", req.ID).Msg("confirmed item address unavailable")
	} else {
		result.itemAddress = service.config.Human(addr)
	}
	return result, nil
}

// confirmedItem reads the minted item's address back from the collection,
// using the predicted index or else the last index the collection handed out.
func (service *ServiceMint) confirmedItem(ctx context.Context, collection ton_utils.Address, predicted *uint64) (ton_utils.Address, error) {
	var index uint64
	if predicted != nil {
		index = *predicted
	} else {
		next, err := service.nextItemIndex(ctx, collection)
		if err != nil {
			return ton_utils.Address{}, err
		}
		if next == 0 {
			return ton_utils.Address{}, fmt.Errorf("%w: collection is empty", ErrRemoteRead)
		}
		index = next - 1
	}
	return service.itemAddressByIndex(ctx, collection, index)
}

// PredictItem returns the index and address the next item minted in
// collection will get. The result is advisory: a concurrent mint can take
// the index first.
func (service *ServiceMint) PredictItem(ctx context.Context, collection ton_utils.Address) (uint64, ton_utils.Address, error) {
	index, err := service.nextItemIndex(ctx, collection)
	if err != nil {
		return 0, ton_utils.Address{}, err
	}
	if service.config.NftItemCode != nil {
		si, err := payload.NftItemStateInit(service.config.NftItemCode, index, collection)
		if err != nil {
			return 0, ton_utils.Address{}, err
		}
		addr, err := ton_utils.DeriveAddress(collection.Workchain, si)
		return index, addr, err
	}
	addr, err := service.itemAddressByIndex(ctx, collection, index)
	return index, addr, err
}

func (service *ServiceMint) nextItemIndex(ctx context.Context, collection ton_utils.Address) (uint64, error) {
	res, err := service.chain.RunGetMethod(ctx, collection, "get_collection_data", nil)
	if err != nil {
		return 0, fmt.Errorf("%w: get_collection_data: %w", ErrRemoteRead, err)
	}
	return res.Uint64(0)
}

func (service *ServiceMint) itemAddressByIndex(ctx context.Context, collection ton_utils.Address, index uint64) (ton_utils.Address, error) {
	res, err := service.chain.RunGetMethod(ctx, collection, "get_nft_address_by_index", [][]string{toncenter.NumArg(index)})
	if err != nil {
		return ton_utils.Address{}, fmt.Errorf("%w: get_nft_address_by_index: %w", ErrRemoteRead, err)
	}
	return res.Address(0)
}

// BuildPayload prepares a mint for a client wallet to sign and send.
func (service *ServiceMint) BuildPayload(ctx context.Context, userAddress, metadataURI, collection string) (*MintPayload, error) {
	target, err := service.config.RequireCollection(collection)
	if err != nil {
		return nil, err
	}
	body, err := payload.NftMint(userAddress, metadataURI)
	if err != nil {
		return nil, err
	}
	b64, err := cell.ToBase64(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	quote, err := service.fee.ResolveRequiredValue(ctx, target)
	if err != nil {
		return nil, err
	}
	return &MintPayload{
		Payload:    b64,
		Amount:     quote.Total,
		Collection: service.config.Human(target),
		ValidUntil: service.now().Add(ENVELOPE_VALIDITY).Unix(),
		Quote:      quote,
	}, nil
}

// ExpirePending fails every request still pending after ttl.
func (service *ServiceMint) ExpirePending(ctx context.Context, ttl time.Duration) (int, error) {
	ids, err := service.repo.PendingBefore(ctx, service.now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		release, ok := service.claim(id)
		if !ok {
			continue
		}
		req, err := service.finish(ctx, id, func(r *models.MintRequest) {
			r.Status = models.MintStatusFailed
			r.Error = MessageVerificationTimeout
		})
		release()
		if err != nil {
			return expired, err
		}
		if req.Error == MessageVerificationTimeout {
			expired++
		}
	}
	return expired, nil
}

// Restore reloads the journaled terminal states.
func (service *ServiceMint) Restore(ctx context.Context) (int, error) {
	reqs, err := service.journal.Replay(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: replay: %w", ErrPersistence, err)
	}
	if err := service.repo.Restore(ctx, reqs); err != nil {
		return 0, err
	}
	return len(reqs), nil
}

// Wait blocks until scheduled processing and notifications have finished.
func (service *ServiceMint) Wait() {
	service.wg.Wait()
}

// Shutdown drops scheduled work that has not started and waits for the rest.
func (service *ServiceMint) Shutdown() error {
	service.mu.Lock()
	service.closed = true
	service.mu.Unlock()
	service.cancel()
	service.wg.Wait()
	return nil
}
