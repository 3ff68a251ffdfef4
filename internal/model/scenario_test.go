package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestScenarioOpRoundTrip(t *testing.T) {
	op := ScenarioOp{
		Op:                OpSwap,
		Actor:             "alice",
		TokenA:            "WETH",
		TokenB:            "USDC",
		Fee:               3000,
		ZeroForOne:        true,
		AmountIn:          "1000000000000000000",
		SqrtPriceLimitX96: "4295128740",
	}
	raw, err := json.Marshal(op)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded ScenarioOp
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(op, decoded) {
		t.Fatalf("round trip mismatch:\n  in:  %+v\n  out: %+v", op, decoded)
	}
}

func TestScenarioOpOmitsEmpty(t *testing.T) {
	raw, err := json.Marshal(ScenarioOp{Op: OpSnapshot})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(raw) != `{"op":"snapshot"}` {
		t.Fatalf("unset fields leaked into output: %s", raw)
	}
}

func TestScenarioOpDecodesSparseLine(t *testing.T) {
	line := `{"op":"mint","actor":"lp","token_a":"WETH","token_b":"USDC","fee":3000,"lower_tick":84222,"upper_tick":86129,"liquidity":"1517882343751509868544"}`
	var op ScenarioOp
	if err := json.Unmarshal([]byte(line), &op); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if op.Op != OpMint || op.LowerTick != 84222 || op.UpperTick != 86129 {
		t.Fatalf("decoded fields wrong: %+v", op)
	}
	if op.Liquidity != "1517882343751509868544" {
		t.Fatalf("liquidity = %s", op.Liquidity)
	}
}
