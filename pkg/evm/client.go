// Package evm provides per-chain Ethereum clients and ABI helpers for the
// contracts the treasury engine touches: ERC-20 tokens, Safe accounts and
// their proxy factory, the MultiSend library and the Across spoke pool.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/zero-finance/treasury-engine/pkg/chains"
	"github.com/zero-finance/treasury-engine/pkg/config"
)

// Client wraps an ethclient for one chain together with the operator key
// used to submit transactions.
type Client struct {
	chain      chains.Chain
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	gasLimit   uint64
	maxGas     *big.Int
	logger     *zap.Logger
}

// NewClient connects to a chain's RPC endpoint and loads the operator key.
func NewClient(chain chains.Chain, privateKeyHex string, execCfg *config.ExecutorConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC for chain %d: %w", chain.ID, err)
	}

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	var maxGas *big.Int
	if execCfg != nil && execCfg.MaxGasPrice != "" {
		maxGas = new(big.Int)
		if _, ok := maxGas.SetString(execCfg.MaxGasPrice, 10); !ok {
			return nil, fmt.Errorf("invalid max gas price %q", execCfg.MaxGasPrice)
		}
	}

	var gasLimit uint64
	if execCfg != nil {
		gasLimit = execCfg.GasLimit
	}

	logger.Info("Connected to chain",
		zap.Int64("chain_id", chain.ID),
		zap.String("name", chain.Name),
		zap.String("operator", address.Hex()))

	return &Client{
		chain:      chain,
		client:     client,
		privateKey: privateKey,
		address:    address,
		gasLimit:   gasLimit,
		maxGas:     maxGas,
		logger:     logger,
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Chain returns the chain descriptor this client serves.
func (c *Client) Chain() chains.Chain {
	return c.chain
}

// OperatorAddress returns the address of the operator key.
func (c *Client) OperatorAddress() common.Address {
	return c.address
}

// OperatorKey returns the operator's signing key.
func (c *Client) OperatorKey() *ecdsa.PrivateKey {
	return c.privateKey
}

// Transactor returns transaction options for the operator key with the
// next pending nonce.
func (c *Client) Transactor(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.privateKey, big.NewInt(c.chain.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = big.NewInt(int64(nonce))
	auth.GasLimit = c.gasLimit
	auth.Context = ctx

	if c.maxGas != nil {
		gasPrice, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		if gasPrice.Cmp(c.maxGas) > 0 {
			c.logger.Warn("Suggested gas price exceeds maximum",
				zap.String("suggested", gasPrice.String()),
				zap.String("max", c.maxGas.String()))
			gasPrice = c.maxGas
		}
		auth.GasPrice = gasPrice
	}

	return auth, nil
}

// Submit signs and sends a transaction calling the given address with data.
func (c *Client) Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	auth, err := c.Transactor(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if value == nil {
		value = big.NewInt(0)
	}

	gasPrice := auth.GasPrice
	if gasPrice == nil {
		gasPrice, err = c.client.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to suggest gas price: %w", err)
		}
	}

	gasLimit := auth.GasLimit
	if gasLimit == 0 {
		gasLimit, err = c.client.EstimateGas(ctx, ethereum.CallMsg{
			From:     c.address,
			To:       &to,
			Value:    value,
			Data:     data,
			GasPrice: gasPrice,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
	}

	tx := types.NewTransaction(auth.Nonce.Uint64(), to, value, gasLimit, gasPrice, data)
	signedTx, err := auth.Signer(c.address, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash(), nil
}

// WaitMined polls until the transaction is mined and has the chain's
// configured number of confirmations, or ctx expires.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			confirmed, cerr := c.isConfirmed(ctx, receipt)
			if cerr != nil {
				return nil, cerr
			}
			if confirmed {
				return receipt, nil
			}
		} else if err != ethereum.NotFound {
			return nil, fmt.Errorf("failed to get receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) isConfirmed(ctx context.Context, receipt *types.Receipt) (bool, error) {
	if c.chain.ConfirmationBlocks == 0 {
		return true, nil
	}
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get latest block: %w", err)
	}
	confirmations := new(big.Int).Sub(header.Number, receipt.BlockNumber)
	return confirmations.Cmp(big.NewInt(int64(c.chain.ConfirmationBlocks))) >= 0, nil
}

// TokenBalance reads an ERC-20 balance at the latest block.
func (c *Client) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := PackBalanceOf(account)
	if err != nil {
		return nil, err
	}
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}
	return UnpackBalanceOf(result)
}

// CodeAt returns the contract code at the given address.
func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return c.client.CodeAt(ctx, account, nil)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// FilterLogs queries logs matching the given filter.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return c.client.FilterLogs(ctx, q)
}

// TransactionReceipt returns the receipt of a mined transaction, or
// ethereum.NotFound if the transaction is not yet mined.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.client.TransactionReceipt(ctx, txHash)
}

// ProxyCreationCode fetches the proxy creation bytecode from a Safe proxy
// factory. Used for CREATE2 address prediction.
func (c *Client) ProxyCreationCode(ctx context.Context, factory common.Address) ([]byte, error) {
	data, err := proxyFactoryABI.Pack("proxyCreationCode")
	if err != nil {
		return nil, err
	}
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &factory, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("proxyCreationCode call failed: %w", err)
	}
	values, err := proxyFactoryABI.Unpack("proxyCreationCode", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack proxyCreationCode: %w", err)
	}
	code, ok := values[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected proxyCreationCode result type")
	}
	return code, nil
}

// SafeNonce reads the current nonce of a Safe account.
func (c *Client) SafeNonce(ctx context.Context, safe common.Address) (*big.Int, error) {
	data, err := safeABI.Pack("nonce")
	if err != nil {
		return nil, err
	}
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &safe, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("safe nonce call failed: %w", err)
	}
	values, err := safeABI.Unpack("nonce", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack safe nonce: %w", err)
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected safe nonce result type")
	}
	return nonce, nil
}

// SafeTransactionHash computes the EIP-712 hash a Safe owner must sign for
// the given transaction, using the Safe's on-chain getTransactionHash.
func (c *Client) SafeTransactionHash(ctx context.Context, safe common.Address, tx SafeTx, nonce *big.Int) (common.Hash, error) {
	data, err := safeABI.Pack("getTransactionHash",
		tx.To, tx.Value, tx.Data, tx.Operation,
		big.NewInt(0), big.NewInt(0), big.NewInt(0),
		common.Address{}, common.Address{},
		nonce,
	)
	if err != nil {
		return common.Hash{}, err
	}
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &safe, Data: data}, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("getTransactionHash call failed: %w", err)
	}
	values, err := safeABI.Unpack("getTransactionHash", result)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to unpack getTransactionHash: %w", err)
	}
	hash, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("unexpected getTransactionHash result type")
	}
	return common.Hash(hash), nil
}
