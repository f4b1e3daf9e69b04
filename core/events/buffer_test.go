package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestBufferRewindDropsLaterEvents(t *testing.T) {
	var buf Buffer
	buf.Emit(MarketListed{Market: common.HexToAddress("0x01")})
	mark := buf.Mark()
	buf.Emit(MarketListed{Market: common.HexToAddress("0x02")})
	buf.Emit(MarketListed{Market: common.HexToAddress("0x03")})

	buf.Rewind(mark)
	got := buf.Drain()
	if len(got) != 1 {
		t.Fatalf("expected 1 staged event, got %d", len(got))
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("expected buffer empty after drain")
	}
}

func TestFlattenComptrollerEvents(t *testing.T) {
	market := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	account := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	ev := Flatten(RewardDistributed{
		RewardType: "governance",
		Side:       "supply",
		Market:     market,
		Account:    account,
		Delta:      uint256.NewInt(500),
		Index:      uint256.NewInt(7),
	})
	if ev.Type != TypeRewardDistributed {
		t.Fatalf("unexpected type %s", ev.Type)
	}
	if ev.Attributes["delta"] != "500" || ev.Attributes["account"] != account.Hex() {
		t.Fatalf("unexpected attributes %v", ev.Attributes)
	}

	deferred := Flatten(RewardPayout{RewardType: "native", Account: account, Amount: uint256.NewInt(3), Deferred: true})
	if deferred.Type != TypeRewardPayoutDeferred {
		t.Fatalf("expected deferred payout type, got %s", deferred.Type)
	}

	global := Flatten(ActionPaused{Action: "seize", Paused: true})
	if _, ok := global.Attributes["market"]; ok {
		t.Fatalf("global pause must not carry a market attribute")
	}
}
