package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

const erc20Abi = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

var tokenAbi = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20Abi))
	if err != nil {
		panic("erc20 abi: " + err.Error())
	}
	return parsed
}()

// TransferTopic is the keccak hash of Transfer(address,address,uint256).
var TransferTopic = tokenAbi.Events["Transfer"].ID

type TransferEvent struct {
	From        string
	To          string
	Amount      decimal.Decimal // token units
	TxHash      string
	BlockNumber uint64
}

func (c *Client) TokenBalance(address string) (decimal.Decimal, error) {
	data, err := tokenAbi.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return decimal.Zero, err
	}

	out, err := c.Rpc.CallContract(context.Background(), ethereum.CallMsg{To: &c.Token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, err
	}

	results, err := tokenAbi.Unpack("balanceOf", out)
	if err != nil {
		return decimal.Zero, err
	}

	raw, ok := results[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("balanceOf: unexpected result type")
	}

	return c.UnitsToToken(raw), nil
}

func (c *Client) NativeBalance(address string) (*big.Int, error) {
	return c.Rpc.BalanceAt(context.Background(), common.HexToAddress(address), nil)
}

// TransferToken sweeps amount to the given address, signed with the signer's
// key. Gas price is 1.2x the configured base price.
func (c *Client) TransferToken(signer *Signer, to string, amount decimal.Decimal) (string, error) {
	from := signer.Address()

	nonce, err := c.Rpc.PendingNonceAt(context.Background(), from)
	if err != nil {
		return "", err
	}

	data, err := tokenAbi.Pack("transfer", common.HexToAddress(to), c.TokenToUnits(amount))
	if err != nil {
		return "", err
	}

	gasPrice := new(big.Int).Div(new(big.Int).Mul(c.GasPriceWei, big.NewInt(12)), big.NewInt(10))

	tx := types.NewTransaction(nonce, c.Token, big.NewInt(0), c.GasLimit, gasPrice, data)

	signedTx, err := signer.SignTx(tx, c.ChainID)
	if err != nil {
		return "", err
	}

	if err := c.Rpc.SendTransaction(context.Background(), signedTx); err != nil {
		return "", err
	}

	return signedTx.Hash().Hex(), nil
}

// GasCost is the native-currency reserve needed for one token transfer at
// the boosted gas price.
func (c *Client) GasCost() *big.Int {
	gasPrice := new(big.Int).Div(new(big.Int).Mul(c.GasPriceWei, big.NewInt(12)), big.NewInt(10))
	return new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(c.GasLimit))
}

type ReceiptInfo struct {
	BlockNumber uint64
	BlockHash   string
	Success     bool
}

func (c *Client) Receipt(txHash string) (*ReceiptInfo, error) {
	receipt, err := c.Rpc.TransactionReceipt(context.Background(), common.HexToHash(txHash))
	if err != nil {
		if err == ethereum.NotFound {
			return nil, nil // not propagated yet
		}
		return nil, err
	}

	return &ReceiptInfo{
		BlockNumber: receipt.BlockNumber.Uint64(),
		BlockHash:   receipt.BlockHash.Hex(),
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}, nil
}

// WaitForConfirmations polls until the transaction is depth blocks deep.
func (c *Client) WaitForConfirmations(txHash string, depth uint64) error {
	for {
		receipt, err := c.Receipt(txHash)
		if err != nil {
			return err
		}

		if receipt != nil {
			if !receipt.Success {
				return fmt.Errorf("transaction %s reverted", txHash)
			}

			head, err := c.Head()
			if err != nil {
				return err
			}

			if head >= receipt.BlockNumber && head-receipt.BlockNumber+1 >= depth {
				return nil
			}
		}

		time.Sleep(15 * time.Second)
	}
}

// SubscribeTransfers opens one filtered subscription for the token
// contract's Transfer event on the streaming connection.
func (c *Client) SubscribeTransfers(ctx context.Context, sink chan<- TransferEvent) (ethereum.Subscription, error) {
	logs := make(chan types.Log, 64)

	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.Token},
		Topics:    [][]common.Hash{{TransferTopic}},
	}

	sub, err := c.Ws.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, err
	}

	go c.forwardTransfers(ctx, logs, sink)

	return sub, nil
}

// forwardTransfers pumps raw logs into the sink until the context ends. The
// log channel is never closed by the client, so the context is the only way
// out once the subscription drops.
func (c *Client) forwardTransfers(ctx context.Context, logs <-chan types.Log, sink chan<- TransferEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case l := <-logs:
			event, err := c.parseTransfer(l)
			if err != nil {
				continue // not a well-formed transfer
			}
			select {
			case sink <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Client) parseTransfer(l types.Log) (TransferEvent, error) {
	if len(l.Topics) < 3 {
		return TransferEvent{}, fmt.Errorf("transfer log: missing topics")
	}

	values, err := tokenAbi.Unpack("Transfer", l.Data)
	if err != nil {
		return TransferEvent{}, err
	}

	raw, ok := values[0].(*big.Int)
	if !ok {
		return TransferEvent{}, fmt.Errorf("transfer log: unexpected value type")
	}

	return TransferEvent{
		From:        common.HexToAddress(l.Topics[1].Hex()).Hex(),
		To:          common.HexToAddress(l.Topics[2].Hex()).Hex(),
		Amount:      c.UnitsToToken(raw),
		TxHash:      l.TxHash.Hex(),
		BlockNumber: l.BlockNumber,
	}, nil
}

// 1000000 base units to 1 (with 6 decimals)
func (c *Client) UnitsToToken(units *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(units, -c.Decimals)
}

// 1.5 to 1500000 base units (with 6 decimals)
func (c *Client) TokenToUnits(amount decimal.Decimal) *big.Int {
	units := new(big.Int)
	units.SetString(amount.Shift(c.Decimals).Truncate(0).String(), 10)
	return units
}
