package ingest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestDecodeSwap(t *testing.T) {
	parsed, err := PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	data, err := parsed.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-1000),
		big.NewInt(2000),
		big.NewInt(123456789),
		big.NewInt(987654321),
		big.NewInt(-15),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")
	log := types.Log{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics: []common.Hash{
			decoder.SwapTopic(),
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(recipient.Bytes()),
		},
		Data:        data,
		BlockNumber: 42,
	}

	if !decoder.CanDecode(log) {
		t.Fatal("swap log not recognized")
	}

	swap, err := decoder.DecodeSwap(log)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}

	if swap.Amount0.Cmp(big.NewInt(-1000)) != 0 || swap.Amount1.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("amounts mismatch: %s, %s", swap.Amount0, swap.Amount1)
	}
	if swap.Tick != -15 {
		t.Fatalf("tick mismatch: %d", swap.Tick)
	}
	if swap.Liquidity.Cmp(big.NewInt(987654321)) != 0 {
		t.Fatalf("liquidity mismatch: %s", swap.Liquidity)
	}
}

func TestDecodeSwapRejectsOtherTopics(t *testing.T) {
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	log := types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}
	if decoder.CanDecode(log) {
		t.Fatal("unexpected topic accepted")
	}
	if _, err := decoder.DecodeSwap(log); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSplitRange(t *testing.T) {
	cases := []struct {
		from, to, batch uint64
		want            []blockRange
	}{
		{1, 10, 4, []blockRange{{1, 4}, {5, 8}, {9, 10}}},
		{5, 5, 100, []blockRange{{5, 5}}},
		{0, 9, 10, []blockRange{{0, 9}}},
	}
	for _, c := range cases {
		got, err := splitRange(c.from, c.to, c.batch)
		if err != nil {
			t.Fatalf("splitRange(%d, %d, %d): %v", c.from, c.to, c.batch, err)
		}
		if len(got) != len(c.want) {
			t.Fatalf("splitRange(%d, %d, %d) = %v, want %v", c.from, c.to, c.batch, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("range %d = %v, want %v", i, got[i], c.want[i])
			}
		}
	}

	if _, err := splitRange(1, 10, 0); err == nil {
		t.Fatal("expected error for zero batch size")
	}
	if _, err := splitRange(10, 1, 5); err == nil {
		t.Fatal("expected error for inverted range")
	}
}
