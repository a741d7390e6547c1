package ingest

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SwapData is one decoded pool Swap event with raw-unit amounts.
type SwapData struct {
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
}

// Decoder decodes Uniswap V3 style pool Swap logs.
type Decoder struct {
	poolABI abi.ABI
	swapID  common.Hash
}

func NewDecoder() (*Decoder, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, err
	}
	return &Decoder{
		poolABI: parsed,
		swapID:  parsed.Events["Swap"].ID,
	}, nil
}

// SwapTopic returns the topic0 hash of the Swap event.
func (d *Decoder) SwapTopic() common.Hash {
	return d.swapID
}

// CanDecode checks whether a log is a Swap event of the pool ABI.
func (d *Decoder) CanDecode(log types.Log) bool {
	return len(log.Topics) > 0 && log.Topics[0] == d.swapID
}

// DecodeSwap unpacks the non-indexed Swap payload. The sender and recipient
// topics carry no information the simulation needs and are not decoded.
func (d *Decoder) DecodeSwap(log types.Log) (SwapData, error) {
	if !d.CanDecode(log) {
		return SwapData{}, fmt.Errorf("not a swap log: %s", topic0Hex(log))
	}

	event := d.poolABI.Events["Swap"]
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return SwapData{}, fmt.Errorf("unpack swap: %w", err)
	}
	if len(values) != 5 {
		return SwapData{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}

	amount0, err := asBigInt(values[0])
	if err != nil {
		return SwapData{}, fmt.Errorf("amount0: %w", err)
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return SwapData{}, fmt.Errorf("amount1: %w", err)
	}
	sqrtPrice, err := asBigInt(values[2])
	if err != nil {
		return SwapData{}, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	liquidity, err := asBigInt(values[3])
	if err != nil {
		return SwapData{}, fmt.Errorf("liquidity: %w", err)
	}
	tickInt, err := asBigInt(values[4])
	if err != nil {
		return SwapData{}, fmt.Errorf("tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return SwapData{}, fmt.Errorf("tick: %w", err)
	}

	return SwapData{
		Amount0:      amount0,
		Amount1:      amount1,
		SqrtPriceX96: sqrtPrice,
		Liquidity:    liquidity,
		Tick:         tick,
	}, nil
}

func topic0Hex(log types.Log) string {
	if len(log.Topics) == 0 {
		return "<none>"
	}
	return strings.ToLower(log.Topics[0].Hex())
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
