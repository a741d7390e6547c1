package ingest

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rangesim/internal/chain"
	"rangesim/internal/model"
)

// FetchPool reads the pool's immutable metadata from chain and builds the
// pool record the simulation consumes. Pair defaults to SYMBOL0-SYMBOL1
// when the caller passes an empty name.
func FetchPool(ctx context.Context, client *chain.Client, address common.Address, pair string, reverse int, logger *zap.Logger) (*model.Pool, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, client, address, parsed, "token0")
	if err != nil {
		return nil, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return nil, fmt.Errorf("token0: %w", err)
	}

	values, err = callMethod(ctx, client, address, parsed, "token1")
	if err != nil {
		return nil, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return nil, fmt.Errorf("token1: %w", err)
	}

	values, err = callMethod(ctx, client, address, parsed, "fee")
	if err != nil {
		return nil, err
	}
	fee, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}

	values, err = callMethod(ctx, client, address, parsed, "tickSpacing")
	if err != nil {
		return nil, err
	}
	spacingInt, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("tick spacing: %w", err)
	}
	spacing, err := int24FromBig(spacingInt)
	if err != nil {
		return nil, fmt.Errorf("tick spacing: %w", err)
	}

	symbol0, decimals0, err := fetchToken(ctx, client, token0)
	if err != nil {
		return nil, fmt.Errorf("token0 metadata: %w", err)
	}
	symbol1, decimals1, err := fetchToken(ctx, client, token1)
	if err != nil {
		return nil, fmt.Errorf("token1 metadata: %w", err)
	}

	if pair == "" {
		pair = fmt.Sprintf("%s-%s", symbol0, symbol1)
	}

	pool := &model.Pool{
		Pair:        pair,
		Token0:      symbol0,
		Token1:      symbol1,
		Decimal0:    int(decimals0),
		Decimal1:    int(decimals1),
		Reverse:     reverse,
		TickSpacing: spacing,
		// The contract reports the fee in hundredths of a bip.
		SwapFee: decimal.NewFromBigInt(fee, -6),
	}

	logger.Info("pool metadata loaded",
		zap.String("pair", pool.Pair),
		zap.String("address", address.Hex()),
		zap.Int32("tick_spacing", pool.TickSpacing),
		zap.String("swap_fee", pool.SwapFee.String()),
	)
	return pool, nil
}

func fetchToken(ctx context.Context, client *chain.Client, token common.Address) (string, uint8, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return "", 0, fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := callMethod(ctx, client, token, parsed, "decimals")
	if err != nil {
		return "", 0, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return "", 0, err
	}

	symbol := token.Hex()
	if values, err := callMethod(ctx, client, token, parsed, "symbol"); err == nil {
		if s, ok := values[0].(string); ok && s != "" {
			symbol = s
		}
	}
	return symbol, decimals, nil
}

func callMethod(ctx context.Context, client *chain.Client, target common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &target, Data: data}
	var block *big.Int
	resp, err := client.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}
