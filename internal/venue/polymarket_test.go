package venue

import "testing"

func TestIsTokenID(t *testing.T) {
	if !isTokenID("123456789012345") {
		t.Error("digits-only should be a token_id")
	}
	if isTokenID("0xabc123") {
		t.Error("hex with letters should not be a token_id")
	}
}

func TestIsConditionID(t *testing.T) {
	if !isConditionID("0xabc123ef") {
		t.Error("0x-prefixed hex should be a condition_id")
	}
	if !isConditionID("abc123ef") {
		t.Error("bare hex should be a condition_id")
	}
}

func TestBestDecimalLevel(t *testing.T) {
	bids := []clobBookLevel{{Price: "0.42", Size: "100"}, {Price: "0.55", Size: "20"}}
	price, size, ok := bestDecimalLevel(bids, true)
	if !ok || price != 0.55 || size != 20 {
		t.Fatalf("bestDecimalLevel(max) = %v %v %v, want 0.55 20 true", price, size, ok)
	}

	asks := []clobBookLevel{{Price: "0.60", Size: "5"}, {Price: "0.58", Size: "8"}}
	price, size, ok = bestDecimalLevel(asks, false)
	if !ok || price != 0.58 || size != 8 {
		t.Fatalf("bestDecimalLevel(min) = %v %v %v, want 0.58 8 true", price, size, ok)
	}

	if _, _, ok := bestDecimalLevel(nil, true); ok {
		t.Error("empty levels should report ok=false")
	}
}
