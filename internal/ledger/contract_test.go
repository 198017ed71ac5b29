package ledger

import (
	"errors"
	"math/big"
	"testing"
)

func TestCallDispatchRoundTrip(t *testing.T) {
	l := newTestLedger(t)

	placement, err := PackRecordPlacement(owner, "lend", usdc, big.NewInt(100), 1, 2, []byte("meta"))
	if err != nil {
		t.Fatalf("PackRecordPlacement failed: %v", err)
	}

	output, err := l.Call(nil, vaultAddr, nil, placement)
	if err != nil {
		t.Fatalf("ledger call failed: %v", err)
	}
	id, err := UnpackPlacementID(output)
	if err != nil {
		t.Fatalf("UnpackPlacementID failed: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}

	building := l.GetBuilding(id)
	if building.BuildingType != "lend" || building.X != 1 || building.Y != 2 {
		t.Fatalf("unexpected building: %+v", building)
	}
	if string(building.Metadata) != "meta" {
		t.Fatalf("expected metadata to round trip, got %q", building.Metadata)
	}

	harvest, err := PackRecordHarvest(owner, id, big.NewInt(5))
	if err != nil {
		t.Fatalf("PackRecordHarvest failed: %v", err)
	}
	if _, err := l.Call(nil, vaultAddr, nil, harvest); err != nil {
		t.Fatalf("harvest call failed: %v", err)
	}

	demolition, err := PackRecordDemolition(owner, id, big.NewInt(100))
	if err != nil {
		t.Fatalf("PackRecordDemolition failed: %v", err)
	}
	if _, err := l.Call(nil, vaultAddr, nil, demolition); err != nil {
		t.Fatalf("demolition call failed: %v", err)
	}

	stats := l.GetUserStats(owner)
	if stats.TotalHarvested.Cmp(big.NewInt(5)) != 0 || stats.TotalWithdrawn.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected stats after dispatched calls: %+v", stats)
	}
}

func TestUnpackRecordedAmount(t *testing.T) {
	harvest, err := PackRecordHarvest(owner, 7, big.NewInt(42))
	if err != nil {
		t.Fatalf("PackRecordHarvest failed: %v", err)
	}
	amount, err := UnpackRecordedAmount(harvest)
	if err != nil {
		t.Fatalf("UnpackRecordedAmount failed: %v", err)
	}
	if amount.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("expected harvest amount 42, got %s", amount)
	}

	demolition, err := PackRecordDemolition(owner, 7, big.NewInt(900))
	if err != nil {
		t.Fatalf("PackRecordDemolition failed: %v", err)
	}
	amount, err = UnpackRecordedAmount(demolition)
	if err != nil {
		t.Fatalf("UnpackRecordedAmount failed: %v", err)
	}
	if amount.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("expected demolition amount 900, got %s", amount)
	}

	// Placement calls carry no single amount to report.
	placement, err := PackRecordPlacement(owner, "lend", usdc, big.NewInt(1), 0, 0, nil)
	if err != nil {
		t.Fatalf("PackRecordPlacement failed: %v", err)
	}
	if _, err := UnpackRecordedAmount(placement); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod for placement input, got %v", err)
	}
	if _, err := UnpackRecordedAmount([]byte{0x01}); !errors.Is(err, ErrBadCalldata) {
		t.Fatalf("expected ErrBadCalldata for short input, got %v", err)
	}
}

func TestCallRejectsMalformedInput(t *testing.T) {
	l := newTestLedger(t)

	if _, err := l.Call(nil, vaultAddr, nil, []byte{0x01}); !errors.Is(err, ErrBadCalldata) {
		t.Fatalf("expected ErrBadCalldata for short input, got %v", err)
	}
	if _, err := l.Call(nil, vaultAddr, nil, []byte{0xde, 0xad, 0xbe, 0xef}); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod for bogus selector, got %v", err)
	}
}
