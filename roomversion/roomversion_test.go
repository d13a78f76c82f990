package roomversion

import (
	"testing"

	"github.com/tos-network/roomcore/rcerr"
)

func TestLookupKnownVersions(t *testing.T) {
	for _, v := range []string{"1", "6", "10", "11", "12"} {
		if _, err := Lookup(v); err != nil {
			t.Errorf("Lookup(%q): unexpected error %v", v, err)
		}
	}
}

func TestLookupUnknownVersion(t *testing.T) {
	_, err := Lookup("99")
	if err == nil {
		t.Fatal("expected error for unknown version")
	}
	if !rcerr.Is(err, rcerr.UnsupportedRoomVersion) {
		t.Errorf("expected UnsupportedRoomVersion, got %v", err)
	}
}

func TestIntegerPowerLevelsBoundary(t *testing.T) {
	v9, _ := Lookup("9")
	v10, _ := Lookup("10")
	if v9.IntegerPowerLevels {
		t.Error("v9 must not require integer power levels")
	}
	if !v10.IntegerPowerLevels {
		t.Error("v10 must require integer power levels")
	}
}

func TestKnockingIntroducedAtV7(t *testing.T) {
	v6, _ := Lookup("6")
	v7, _ := Lookup("7")
	if v6.KnockingSupported {
		t.Error("v6 must not support knocking")
	}
	if !v7.KnockingSupported {
		t.Error("v7 must support knocking")
	}
}

func TestEventIDFormatByVersion(t *testing.T) {
	v1, _ := Lookup("1")
	v3, _ := Lookup("3")
	v4, _ := Lookup("4")
	if v1.EventIDFormat != EventIDAssigned {
		t.Error("v1 must use assigned event IDs")
	}
	if v3.EventIDFormat != EventIDSHA256NoSigil {
		t.Error("v3 must use unsigiled sha256 event IDs")
	}
	if v4.EventIDFormat != EventIDSHA256Sigil {
		t.Error("v4 must use sigiled sha256 event IDs")
	}
}
