// Package evm implements the asset custody provider against an EVM chain:
// deposits are pulled into the custody account with ERC-20 transferFrom
// (holders approve the custody address beforehand) and redemptions are paid
// out with transfer. A transfer either lands in a successful receipt or the
// call returns an error; there is no partial state.
package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/bondable/internal/crypto"
	"github.com/alanyoungcy/bondable/internal/domain"
	"github.com/alanyoungcy/bondable/internal/fixedpoint"
)

// ERC-20 function selectors.
var (
	transferFromSelector = ethcrypto.Keccak256([]byte("transferFrom(address,address,uint256)"))[:4]
	transferSelector     = ethcrypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
)

const (
	// defaultGasLimit covers ERC-20 transfers on every token we have seen;
	// tokens with hooks can override it in config.
	defaultGasLimit = 120_000

	// receiptPollInterval is how often to poll for the mined receipt.
	receiptPollInterval = 2 * time.Second
)

// Config holds the custody provider settings.
type Config struct {
	// RPCURL is the JSON-RPC endpoint of the target chain.
	RPCURL string
	// GasLimit for custody transfers; 0 means defaultGasLimit.
	GasLimit uint64
	// ReceiptTimeout bounds how long a transfer waits to be mined.
	ReceiptTimeout time.Duration
}

// Custodian implements domain.Custodian over ERC-20 tokens. The signer's
// address is the custody account that holds deposited underlying.
type Custodian struct {
	client         *ethclient.Client
	signer         *crypto.Signer
	gasLimit       uint64
	receiptTimeout time.Duration
	logger         *slog.Logger
}

// New dials the RPC endpoint and returns a Custodian signing with the given
// key.
func New(ctx context.Context, cfg Config, signer *crypto.Signer, logger *slog.Logger) (*Custodian, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("custody: dial %s: %w", cfg.RPCURL, err)
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	receiptTimeout := cfg.ReceiptTimeout
	if receiptTimeout <= 0 {
		receiptTimeout = 2 * time.Minute
	}

	return &Custodian{
		client:         client,
		signer:         signer,
		gasLimit:       gasLimit,
		receiptTimeout: receiptTimeout,
		logger:         logger.With(slog.String("component", "custody")),
	}, nil
}

// Close releases the RPC connection.
func (c *Custodian) Close() {
	c.client.Close()
}

// Address returns the custody account address.
func (c *Custodian) Address() common.Address {
	return c.signer.Address()
}

// TransferIn pulls amount (1e18 base units) of asset from the holder into
// custody via transferFrom. The holder must have approved the custody
// address for at least the native-unit amount.
func (c *Custodian) TransferIn(ctx context.Context, asset common.Address, from common.Address, amount *uint256.Int, decimals uint8) error {
	native, err := fixedpoint.ScaleFromBase(amount, decimals)
	if err != nil {
		return err
	}

	calldata := packCall(transferFromSelector,
		padAddress(from), padAddress(c.signer.Address()), native.PaddedBytes(32))
	return c.execute(ctx, asset, calldata, "transfer_in", from, native)
}

// TransferOut pays amount (1e18 base units) of asset from custody to the
// holder via transfer.
func (c *Custodian) TransferOut(ctx context.Context, asset common.Address, to common.Address, amount *uint256.Int, decimals uint8) error {
	native, err := fixedpoint.ScaleFromBase(amount, decimals)
	if err != nil {
		return err
	}

	calldata := packCall(transferSelector, padAddress(to), native.PaddedBytes(32))
	return c.execute(ctx, asset, calldata, "transfer_out", to, native)
}

// execute signs, broadcasts, and waits for a successful receipt of one
// custody transaction against the token contract.
func (c *Custodian) execute(ctx context.Context, token common.Address, calldata []byte, op string, counterparty common.Address, native *uint256.Int) error {
	nonce, err := c.client.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		return fmt.Errorf("custody: %s: nonce: %w", op, err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("custody: %s: gas price: %w", op, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &token,
		Value:    big.NewInt(0),
		Gas:      c.gasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})
	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return fmt.Errorf("custody: %s: %w", op, err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("custody: %s: broadcast: %w", op, err)
	}

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return fmt.Errorf("custody: %s: %w", op, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("custody: %s: tx %s reverted", op, signed.Hash().Hex())
	}

	c.logger.InfoContext(ctx, "custody transfer mined",
		slog.String("op", op),
		slog.String("token", token.Hex()),
		slog.String("counterparty", counterparty.Hex()),
		slog.String("native_amount", native.Dec()),
		slog.String("tx", signed.Hash().Hex()),
	)
	return nil
}

// waitMined polls for the transaction receipt until it lands or the timeout
// elapses.
func (c *Custodian) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func packCall(selector []byte, args ...[]byte) []byte {
	out := make([]byte, 0, 4+32*len(args))
	out = append(out, selector...)
	for _, a := range args {
		out = append(out, a...)
	}
	return out
}

func padAddress(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

// Compile-time interface check.
var _ domain.Custodian = (*Custodian)(nil)
