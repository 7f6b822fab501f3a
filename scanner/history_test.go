package scanner

import (
	"fmt"
	"testing"
	"time"
)

func TestHistoryNewestFirst(t *testing.T) {
	var h scanHistory
	h.push(HistoryEntry{Barcode: "A", ScannedAt: time.Now()})
	h.push(HistoryEntry{Barcode: "B", ScannedAt: time.Now()})
	h.push(HistoryEntry{Barcode: "C", ScannedAt: time.Now()})

	got := h.snapshot()
	if len(got) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(got))
	}
	if got[0].Barcode != "C" || got[1].Barcode != "B" || got[2].Barcode != "A" {
		t.Errorf("History should be newest first: %q %q %q", got[0].Barcode, got[1].Barcode, got[2].Barcode)
	}
}

func TestHistoryLimit(t *testing.T) {
	var h scanHistory
	for i := 0; i <= historyLimit; i++ {
		h.push(HistoryEntry{Barcode: fmt.Sprintf("B%02d", i)})
	}

	if h.len() != historyLimit {
		t.Fatalf("History should cap at %d, got %d", historyLimit, h.len())
	}

	got := h.snapshot()
	if got[0].Barcode != fmt.Sprintf("B%02d", historyLimit) {
		t.Errorf("Newest entry should survive, got %q at head", got[0].Barcode)
	}
	if got[len(got)-1].Barcode != "B01" {
		t.Errorf("Oldest entry B00 should be evicted, tail is %q", got[len(got)-1].Barcode)
	}
}

func TestHistorySnapshotIsCopy(t *testing.T) {
	var h scanHistory
	h.push(HistoryEntry{Barcode: "A"})

	got := h.snapshot()
	got[0].Barcode = "mutated"

	if h.snapshot()[0].Barcode != "A" {
		t.Error("Mutating a snapshot must not affect the stored history")
	}
}

func TestHistoryClear(t *testing.T) {
	var h scanHistory
	h.push(HistoryEntry{Barcode: "A"})
	h.clear()
	if h.len() != 0 {
		t.Errorf("Expected empty history after clear, got %d entries", h.len())
	}
}
