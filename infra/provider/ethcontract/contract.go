// Package ethcontract talks to the top-up settlement contract on an
// EVM chain through JSON-RPC.
package ethcontract

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"github.com/amirasaad/topupledger/pkg/provider/onchain"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

const contractABI = `[
  {"type":"function","name":"initiateTopUp","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"topUpId","type":"bytes32"},{"name":"user","type":"address"},
             {"name":"amountCents","type":"uint256"},{"name":"cardLastFour","type":"string"}]},
  {"type":"function","name":"confirmTopUp","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"topUpId","type":"bytes32"},{"name":"success","type":"bool"},
             {"name":"message","type":"string"}]}
]`

// Client is the part of ethclient.Client the contract needs.
type Client interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Contract implements onchain.Contract against a deployed settlement
// contract. Every submission is watched until its receipt is mined and
// the outcome is published on the bus.
type Contract struct {
	client       Client
	abi          abi.ABI
	address      common.Address
	key          *ecdsa.PrivateKey
	from         common.Address
	gasLimit     uint64
	pollInterval time.Duration
	bus          eventbus.Bus
	logger       *slog.Logger

	nonceMu sync.Mutex
	chainID *big.Int

	ctx     context.Context
	cancel  context.CancelFunc
	watches sync.WaitGroup
}

// Dial connects to cfg.RPCURL and returns the contract client.
func Dial(ctx context.Context, cfg *config.Chain, bus eventbus.Bus, logger *slog.Logger) (*Contract, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	c, err := New(client, cfg, bus, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

// New creates the contract client on top of an existing RPC client.
func New(client Client, cfg *config.Chain, bus eventbus.Bus, logger *slog.Logger) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid service account key: %w", err)
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 300_000
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Contract{
		client:       client,
		abi:          parsed,
		address:      common.HexToAddress(cfg.ContractAddress),
		key:          key,
		from:         ethcrypto.PubkeyToAddress(key.PublicKey),
		gasLimit:     gasLimit,
		pollInterval: pollInterval,
		bus:          bus,
		logger:       logger.With("provider", "eth_contract"),
		ctx:          ctx,
		cancel:       cancel,
	}
	c.logger.Info("🔗 Settlement contract client ready", "contract", c.address.Hex(), "service_account", c.from.Hex())
	return c, nil
}

// TopUpID derives the bytes32 contract id of a top-up from its correlation key.
func TopUpID(correlationKey string) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256([]byte(correlationKey)))
}

// Submit calls initiateTopUp. The request id is the hex top-up id, so a
// resubmission with the same correlation key addresses the same request.
// AccountRef is used as the beneficiary when it is an address; otherwise
// the service account stands in.
func (c *Contract) Submit(ctx context.Context, req *onchain.SubmitRequest) (*onchain.SubmitReceipt, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrOnChainSubmission)
	}
	topUpID := TopUpID(req.CorrelationKey)
	user := c.from
	if common.IsHexAddress(req.AccountRef) {
		user = common.HexToAddress(req.AccountRef)
	}

	data, err := c.abi.Pack("initiateTopUp", [32]byte(topUpID), user, big.NewInt(req.AmountCents), req.CardLast4)
	if err != nil {
		return nil, fmt.Errorf("%w: encode initiateTopUp: %v", domain.ErrOnChainSubmission, err)
	}
	txHash, err := c.send(ctx, data)
	if err != nil {
		return nil, err
	}

	receipt := &onchain.SubmitReceipt{RequestID: topUpID.Hex(), TxRef: txHash.Hex()}
	c.logger.Info("🔗 initiateTopUp sent", "request_id", receipt.RequestID, "tx_hash", receipt.TxRef, "amount_cents", req.AmountCents)
	c.watch(receipt.RequestID, txHash)
	return receipt, nil
}

// Confirm calls confirmTopUp without waiting for it to be mined.
func (c *Contract) Confirm(ctx context.Context, requestID string, success bool, message string) error {
	if !strings.HasPrefix(requestID, "0x") || len(requestID) != 2+2*common.HashLength {
		return fmt.Errorf("%w: malformed request id %q", domain.ErrValidation, requestID)
	}
	data, err := c.abi.Pack("confirmTopUp", [32]byte(common.HexToHash(requestID)), success, message)
	if err != nil {
		return fmt.Errorf("%w: encode confirmTopUp: %v", domain.ErrOnChainSubmission, err)
	}
	txHash, err := c.send(ctx, data)
	if err != nil {
		return err
	}
	c.logger.Info("🔗 confirmTopUp sent", "request_id", requestID, "success", success, "tx_hash", txHash.Hex())
	return nil
}

// Health checks that the node answers and that code is deployed at the
// contract address.
func (c *Contract) Health(ctx context.Context) onchain.Health {
	var h onchain.Health
	if _, err := c.client.BlockNumber(ctx); err != nil {
		h.Node = err
		h.Contract = errors.New("node unreachable")
		return h
	}
	code, err := c.client.CodeAt(ctx, c.address, nil)
	switch {
	case err != nil:
		h.Contract = err
	case len(code) == 0:
		h.Contract = fmt.Errorf("no contract code at %s", c.address.Hex())
	}
	return h
}

// Close stops the receipt watchers.
func (c *Contract) Close() {
	c.cancel()
	c.watches.Wait()
}

func (c *Contract) send(ctx context.Context, data []byte) (common.Hash, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, classify("pending nonce", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, classify("gas price", err)
	}
	if c.chainID == nil {
		if c.chainID, err = c.client.ChainID(ctx); err != nil {
			return common.Hash{}, classify("chain id", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Value:    big.NewInt(0),
		Gas:      c.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: sign: %v", domain.ErrOnChainSubmission, err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		if isTimeout(err) {
			// the node may have taken the transaction before the deadline
			return common.Hash{}, fmt.Errorf("%w: %w: send transaction %s: %w",
				domain.ErrOnChainSubmission, domain.ErrOutcomeUnknown, signed.Hash().Hex(), err)
		}
		return common.Hash{}, classify("send transaction", err)
	}
	return signed.Hash(), nil
}

// classify treats errors answered by the node as final and transport
// failures as retryable.
func classify(op string, err error) error {
	wrapped := fmt.Errorf("%w: %s: %w", domain.ErrOnChainSubmission, op, err)
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return wrapped
	}
	return domain.Transient(wrapped)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Contract) watch(requestID string, txHash common.Hash) {
	c.watches.Add(1)
	go func() {
		defer c.watches.Done()
		log := c.logger.With("request_id", requestID, "tx_hash", txHash.Hex())
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				log.Warn("⚠️ Receipt watch stopped before the transaction was mined")
				return
			case <-ticker.C:
			}
			receipt, err := c.client.TransactionReceipt(c.ctx, txHash)
			if errors.Is(err, ethereum.NotFound) {
				continue
			}
			if err != nil {
				log.Warn("⚠️ Receipt lookup failed", "error", err)
				continue
			}
			c.publish(log, requestID, txHash, receipt)
			return
		}
	}()
}

func (c *Contract) publish(log *slog.Logger, requestID string, txHash common.Hash, receipt *types.Receipt) {
	var ev events.Event
	if receipt.Status == types.ReceiptStatusSuccessful {
		ev = events.NewOnChainConfirmed(requestID, txHash.Hex())
		log.Info("✅ Top-up request mined", "block", receipt.BlockNumber)
	} else {
		ev = events.NewOnChainFailed(requestID, txHash.Hex(), "transaction reverted")
		log.Warn("⚠️ Top-up request reverted", "block", receipt.BlockNumber)
	}
	if err := c.bus.Emit(context.Background(), ev); err != nil {
		log.Error("❌ Failed to publish on-chain outcome", "error", err)
	}
}

var _ onchain.Contract = (*Contract)(nil)
