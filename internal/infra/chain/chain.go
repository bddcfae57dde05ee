package chain

import (
	"context"
	"gateway/internal/config"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client holds the two ledger connections: rpc for point lookups and ws for
// the event stream.
type Client struct {
	Rpc *ethclient.Client
	Ws  *ethclient.Client

	Token    common.Address
	Decimals int32

	ChainID     *big.Int
	GasPriceWei *big.Int
	GasLimit    uint64

	wsUrl string
}

func Init(config *config.Config) *Client {
	rpc := Connect(config.Eth.RpcUrl)
	ws := Connect(config.Eth.WsUrl)

	chainID, err := rpc.ChainID(context.Background())
	if err != nil {
		panic("Can't read chain id: " + err.Error())
	}

	return &Client{
		Rpc:         rpc,
		Ws:          ws,
		Token:       common.HexToAddress(config.Eth.TokenContract),
		Decimals:    config.Eth.TokenDecimals,
		ChainID:     chainID,
		GasPriceWei: big.NewInt(config.Eth.GasPriceWei),
		GasLimit:    config.Eth.GasLimit,
		wsUrl:       config.Eth.WsUrl,
	}
}

func Connect(url string) *ethclient.Client {
	client, err := ethclient.Dial(url)
	if err != nil {
		panic("Can't connect: " + err.Error())
	}

	return client
}

// Redial replaces the streaming connection after a subscription drop.
func (c *Client) Redial() error {
	ws, err := ethclient.Dial(c.wsUrl)
	if err != nil {
		return err
	}
	c.Ws = ws
	return nil
}

func (c *Client) Head() (uint64, error) {
	return c.Rpc.BlockNumber(context.Background())
}
