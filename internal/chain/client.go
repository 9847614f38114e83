package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ErrReadOnly is returned by write calls when no signing key is configured.
var ErrReadOnly = errors.New("wallet client not available: a private key must be set for write operations")

// Backend is everything the bound contracts need from an RPC connection.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Client pairs an RPC backend with the optional server wallet.
type Client struct {
	backend Backend
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
	log     *zap.Logger

	// sendMu orders sends from the wallet; nextNonce is valid while
	// haveNonce is set.
	sendMu    sync.Mutex
	nextNonce uint64
	haveNonce bool
}

// Dial connects to rpcURL. When wantChainID is non-zero the node must
// report the same chain id.
func Dial(ctx context.Context, rpcURL string, wantChainID int64, privateKey string, log *zap.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	if wantChainID != 0 && chainID.Int64() != wantChainID {
		ec.Close()
		return nil, fmt.Errorf("rpc %s serves chain %s, expected %d", rpcURL, chainID, wantChainID)
	}

	var key *ecdsa.PrivateKey
	if strings.TrimSpace(privateKey) != "" {
		key, err = ParseKey(privateKey)
		if err != nil {
			ec.Close()
			return nil, err
		}
	}

	return NewClient(ec, chainID, key, log), nil
}

func NewClient(backend Backend, chainID *big.Int, key *ecdsa.PrivateKey, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		backend: backend,
		chainID: chainID,
		key:     key,
		log:     log.Named("chain"),
	}
	if key != nil {
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c
}

func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (c *Client) Backend() Backend { return c.backend }

func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// From is the server wallet address, zero when read-only.
func (c *Client) From() common.Address { return c.from }

func (c *Client) CanWrite() bool { return c.key != nil }

// Transactor returns fresh signing options bound to ctx.
func (c *Client) Transactor(ctx context.Context) (*bind.TransactOpts, error) {
	if c.key == nil {
		return nil, ErrReadOnly
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Send signs and submits one transaction built by send. Sends from the
// wallet are serialized and take nonces from a local counter, so
// concurrent writes do not race on the node's pending nonce. A failed
// send drops the counter and the next call reads it from the node again.
func (c *Client) Send(ctx context.Context, send func(*bind.TransactOpts) (*types.Transaction, error)) (*types.Transaction, error) {
	opts, err := c.Transactor(ctx)
	if err != nil {
		return nil, err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.haveNonce {
		n, err := c.backend.PendingNonceAt(ctx, c.from)
		if err != nil {
			return nil, fmt.Errorf("read pending nonce: %w", err)
		}
		c.nextNonce, c.haveNonce = n, true
	}
	opts.Nonce = new(big.Int).SetUint64(c.nextNonce)

	tx, err := send(opts)
	if err != nil {
		c.haveNonce = false
		return nil, err
	}
	c.nextNonce++
	return tx, nil
}

// Wait blocks until tx is mined and fails on a reverted receipt.
func (c *Client) Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	start := time.Now()
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	c.log.Debug("transaction mined",
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
		zap.Duration("took", time.Since(start)))
	return receipt, nil
}

func (c *Client) Close() {
	if ec, ok := c.backend.(*ethclient.Client); ok {
		ec.Close()
	}
}
