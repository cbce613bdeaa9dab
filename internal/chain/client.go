// Package chain is the on-chain adapter: vault collateral moves, share
// minting and merging, and winnings claims against the exchange contracts.
package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cardclob/blackjackbot/internal/domain"
)

const (
	// Gas limits (conservative upper bounds). Used when estimation fails.
	transferGasLimit = uint64(100_000)
	defaultGasLimit  = uint64(200_000)

	// Gas price cache refresh interval.
	gasPriceUpdateInterval = 5 * time.Minute

	// receiptTimeout bounds the wait for transaction confirmation.
	receiptTimeout = 60 * time.Second
)

// Contract ABIs
var (
	vaultABI    abi.ABI
	exchangeABI abi.ABI
	erc20ABI    abi.ABI
)

func init() {
	var err error

	vaultABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "deposit",
			"type": "function",
			"inputs": [{"name": "amount", "type": "uint256"}],
			"outputs": []
		},
		{
			"name": "withdraw",
			"type": "function",
			"inputs": [{"name": "amount", "type": "uint256"}],
			"outputs": []
		},
		{
			"name": "balanceOf",
			"type": "function",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("vault abi parse: " + err.Error())
	}

	exchangeABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "mintShares",
			"type": "function",
			"inputs": [
				{"name": "marketId", "type": "uint256"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": []
		},
		{
			"name": "mergeShares",
			"type": "function",
			"inputs": [
				{"name": "marketId", "type": "uint256"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": []
		},
		{
			"name": "claimWinnings",
			"type": "function",
			"inputs": [{"name": "marketId", "type": "uint256"}],
			"outputs": []
		},
		{
			"name": "yesShares",
			"type": "function",
			"inputs": [
				{"name": "marketId", "type": "uint256"},
				{"name": "account", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "noShares",
			"type": "function",
			"inputs": [
				{"name": "marketId", "type": "uint256"},
				{"name": "account", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("exchange abi parse: " + err.Error())
	}

	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "transfer",
			"type": "function",
			"inputs": [
				{"name": "to", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "balanceOf",
			"type": "function",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}

// Client implements domain.ChainAPI against the vault and exchange contracts.
type Client struct {
	client     *ethclient.Client
	privateKey []byte
	address    common.Address
	chainID    *big.Int

	vaultAddr    common.Address
	exchangeAddr common.Address
	usdcAddr     common.Address

	logger *slog.Logger

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// NewClient creates a chain client connected to the given RPC endpoint.
// privateKeyHex may carry a 0x prefix.
func NewClient(rpcURL, privateKeyHex string, chainID int64, vaultAddr, exchangeAddr, usdcAddr string, logger *slog.Logger) (*Client, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: decode private key: %w", err)
	}

	privKey, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial rpc %s: %w", rpcURL, err)
	}

	return &Client{
		client:       client,
		privateKey:   pkBytes,
		address:      crypto.PubkeyToAddress(privKey.PublicKey),
		chainID:      big.NewInt(chainID),
		vaultAddr:    common.HexToAddress(vaultAddr),
		exchangeAddr: common.HexToAddress(exchangeAddr),
		usdcAddr:     common.HexToAddress(usdcAddr),
		logger:       logger.With(slog.String("component", "chain")),
	}, nil
}

// Address returns the wallet address derived from the signing key.
func (c *Client) Address() string {
	return c.address.Hex()
}

// VaultBalance returns the vault collateral balance in smallest currency
// units.
func (c *Client) VaultBalance(ctx context.Context, address string) (int64, error) {
	out, err := c.callUint(ctx, c.vaultAddr, vaultABI, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("chain: vault balance: %w", err)
	}
	return out.Int64(), nil
}

// WalletBalance returns the wallet's USDC balance in smallest currency units.
func (c *Client) WalletBalance(ctx context.Context, address string) (int64, error) {
	out, err := c.callUint(ctx, c.usdcAddr, erc20ABI, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("chain: wallet balance: %w", err)
	}
	return out.Int64(), nil
}

// Shares returns the YES and NO share holdings for one market.
func (c *Client) Shares(ctx context.Context, marketID uint64, address string) (domain.SharePair, error) {
	addr := common.HexToAddress(address)
	id := new(big.Int).SetUint64(marketID)

	yes, err := c.callUint(ctx, c.exchangeAddr, exchangeABI, "yesShares", id, addr)
	if err != nil {
		return domain.SharePair{}, fmt.Errorf("chain: yes shares %d: %w", marketID, err)
	}
	no, err := c.callUint(ctx, c.exchangeAddr, exchangeABI, "noShares", id, addr)
	if err != nil {
		return domain.SharePair{}, fmt.Errorf("chain: no shares %d: %w", marketID, err)
	}
	return domain.SharePair{YesUnits: yes.Int64(), NoUnits: no.Int64()}, nil
}

// Deposit moves collateral from the wallet into the vault. The USDC allowance
// for the vault is raised to max on first use so later deposits skip the
// approval transaction.
func (c *Client) Deposit(ctx context.Context, amountUnits int64) (string, error) {
	if amountUnits <= 0 {
		return "", fmt.Errorf("chain: %w: deposit amount %d", domain.ErrInvalidOrder, amountUnits)
	}
	if err := c.ensureAllowance(ctx, big.NewInt(amountUnits)); err != nil {
		return "", fmt.Errorf("chain: deposit: %w", err)
	}

	callData, err := vaultABI.Pack("deposit", big.NewInt(amountUnits))
	if err != nil {
		return "", fmt.Errorf("chain: pack deposit: %w", err)
	}
	txHash, err := c.sendTx(ctx, c.vaultAddr, callData, transferGasLimit)
	if err != nil {
		return "", fmt.Errorf("chain: deposit: %w", err)
	}
	c.logger.Info("deposit confirmed", slog.Int64("amount_units", amountUnits), slog.String("tx", txHash))
	return txHash, nil
}

// Withdraw moves collateral from the vault back to the wallet.
func (c *Client) Withdraw(ctx context.Context, amountUnits int64) (string, error) {
	if amountUnits <= 0 {
		return "", fmt.Errorf("chain: %w: withdraw amount %d", domain.ErrInvalidOrder, amountUnits)
	}
	callData, err := vaultABI.Pack("withdraw", big.NewInt(amountUnits))
	if err != nil {
		return "", fmt.Errorf("chain: pack withdraw: %w", err)
	}
	txHash, err := c.sendTx(ctx, c.vaultAddr, callData, transferGasLimit)
	if err != nil {
		return "", fmt.Errorf("chain: withdraw: %w", err)
	}
	c.logger.Info("withdraw confirmed", slog.Int64("amount_units", amountUnits), slog.String("tx", txHash))
	return txHash, nil
}

// Transfer sends USDC from the wallet to an external address. The caller is
// responsible for enforcing the withdraw-to allow-list; the destination here
// is taken as given.
func (c *Client) Transfer(ctx context.Context, to string, amountUnits int64) (string, error) {
	if amountUnits <= 0 {
		return "", fmt.Errorf("chain: %w: transfer amount %d", domain.ErrInvalidOrder, amountUnits)
	}
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("chain: invalid transfer destination %q", to)
	}
	callData, err := erc20ABI.Pack("transfer", common.HexToAddress(to), big.NewInt(amountUnits))
	if err != nil {
		return "", fmt.Errorf("chain: pack transfer: %w", err)
	}
	txHash, err := c.sendTx(ctx, c.usdcAddr, callData, transferGasLimit)
	if err != nil {
		return "", fmt.Errorf("chain: transfer: %w", err)
	}
	c.logger.Info("transfer confirmed",
		slog.String("to", to),
		slog.Int64("amount_units", amountUnits),
		slog.String("tx", txHash))
	return txHash, nil
}

// Mint converts vault collateral into equal YES and NO share sets for one
// market.
func (c *Client) Mint(ctx context.Context, marketID uint64, amountUnits int64) (string, error) {
	callData, err := exchangeABI.Pack("mintShares", new(big.Int).SetUint64(marketID), big.NewInt(amountUnits))
	if err != nil {
		return "", fmt.Errorf("chain: pack mint: %w", err)
	}
	txHash, err := c.sendTx(ctx, c.exchangeAddr, callData, defaultGasLimit)
	if err != nil {
		return "", fmt.Errorf("chain: mint market %d: %w", marketID, err)
	}
	c.logger.Info("mint confirmed",
		slog.Uint64("market_id", marketID),
		slog.Int64("amount_units", amountUnits),
		slog.String("tx", txHash))
	return txHash, nil
}

// Merge converts equal YES and NO share sets back into vault collateral.
func (c *Client) Merge(ctx context.Context, marketID uint64, amountUnits int64) (string, error) {
	callData, err := exchangeABI.Pack("mergeShares", new(big.Int).SetUint64(marketID), big.NewInt(amountUnits))
	if err != nil {
		return "", fmt.Errorf("chain: pack merge: %w", err)
	}
	txHash, err := c.sendTx(ctx, c.exchangeAddr, callData, defaultGasLimit)
	if err != nil {
		return "", fmt.Errorf("chain: merge market %d: %w", marketID, err)
	}
	c.logger.Info("merge confirmed",
		slog.Uint64("market_id", marketID),
		slog.Int64("amount_units", amountUnits),
		slog.String("tx", txHash))
	return txHash, nil
}

// Claim redeems winning shares of a resolved market for collateral.
func (c *Client) Claim(ctx context.Context, marketID uint64) (string, error) {
	callData, err := exchangeABI.Pack("claimWinnings", new(big.Int).SetUint64(marketID))
	if err != nil {
		return "", fmt.Errorf("chain: pack claim: %w", err)
	}
	txHash, err := c.sendTx(ctx, c.exchangeAddr, callData, defaultGasLimit)
	if err != nil {
		return "", fmt.Errorf("chain: claim market %d: %w", marketID, err)
	}
	c.logger.Info("claim confirmed", slog.Uint64("market_id", marketID), slog.String("tx", txHash))
	return txHash, nil
}

// ensureAllowance approves the vault for max uint256 when the current USDC
// allowance cannot cover the requested amount.
func (c *Client) ensureAllowance(ctx context.Context, needed *big.Int) error {
	allowance, err := c.callUint(ctx, c.usdcAddr, erc20ABI, "allowance", c.address, c.vaultAddr)
	if err != nil {
		return fmt.Errorf("check allowance: %w", err)
	}
	if allowance.Cmp(needed) >= 0 {
		return nil
	}

	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	callData, err := erc20ABI.Pack("approve", c.vaultAddr, maxUint256)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}

	c.logger.Info("setting vault allowance")
	if _, err := c.sendTx(ctx, c.usdcAddr, callData, transferGasLimit); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	return nil
}

// callUint performs a read-only contract call that returns a single uint256.
func (c *Client) callUint(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) (*big.Int, error) {
	callData, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	vals, err := contractABI.Unpack(method, result)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	out, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, vals[0])
	}
	return out, nil
}

// sendTx signs and submits a transaction, then blocks until the receipt
// confirms. A reverted or unconfirmed transaction is an error so callers
// never mutate local state on an unsettled chain write.
func (c *Client) sendTx(ctx context.Context, to common.Address, callData []byte, fallbackGas uint64) (string, error) {
	privKey, err := crypto.ToECDSA(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("private key: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := c.getGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("gas price: %w", err)
	}

	gasEstimate, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.address,
		To:       &to,
		GasPrice: gasPrice,
		Data:     callData,
	})
	if err != nil {
		gasEstimate = fallbackGas
		c.logger.Warn("gas estimate failed, using default",
			slog.String("error", err.Error()),
			slog.Uint64("limit", fallbackGas))
	}
	// Add 20% buffer
	gasEstimate = gasEstimate * 12 / 10

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasEstimate, gasPrice, callData)

	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), privKey)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}
	txHash := signed.Hash()

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	receipt, err := c.waitForReceipt(receiptCtx, txHash)
	if err != nil {
		return "", fmt.Errorf("wait receipt %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("tx reverted: %s", txHash.Hex())
	}
	return txHash.Hex(), nil
}

// getGasPrice returns the current gas price, cached to avoid excessive RPC
// calls.
func (c *Client) getGasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	cached := c.cachedGasWei
	updatedAt := c.gasUpdatedAt
	c.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}

	// 10% buffer for faster inclusion.
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	c.mu.Lock()
	c.cachedGasWei = buffered
	c.gasUpdatedAt = time.Now()
	c.mu.Unlock()

	return buffered, nil
}

// waitForReceipt polls until the transaction is mined or ctx expires.
func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}

var _ domain.ChainAPI = (*Client)(nil)
