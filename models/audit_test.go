package models

import (
	"fmt"
	"testing"
	"time"
)

func buildChain(previous string, specs ...[2]string) []AuditEvent {
	events := make([]AuditEvent, 0, len(specs))
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	for i, spec := range specs {
		event := AuditEvent{
			ID:           fmt.Sprintf("%d_%s", i, spec[1]),
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			Username:     "admin",
			Action:       spec[0],
			Module:       spec[1],
			PreviousHash: previous,
		}
		event.CurrentHash = event.ComputeHash()
		events = append(events, event)
		previous = event.CurrentHash
	}
	return events
}

func TestChainIntactAcceptsLinkedEvents(t *testing.T) {
	events := buildChain("",
		[2]string{"index", "documents"},
		[2]string{"sync", "sql"},
		[2]string{"export", "queries"},
	)
	if !chainIntact(events) {
		t.Fatal("well-linked chain reported as broken")
	}
}

func TestChainIntactAcceptsChainResumedFromStoredHead(t *testing.T) {
	// A second process (or a restarted one) must continue from the newest
	// stored hash, not from scratch.
	first := buildChain("", [2]string{"index", "documents"}, [2]string{"sync", "sql"})
	resumed := buildChain(first[len(first)-1].CurrentHash, [2]string{"delete", "documents"})
	if !chainIntact(append(first, resumed...)) {
		t.Fatal("chain resumed from the stored head reported as broken")
	}
}

func TestChainIntactRejectsRestartFromEmptyHash(t *testing.T) {
	first := buildChain("", [2]string{"index", "documents"}, [2]string{"sync", "sql"})
	orphaned := buildChain("", [2]string{"delete", "documents"})
	if chainIntact(append(first, orphaned...)) {
		t.Fatal("event ignoring its stored predecessor passed verification")
	}
}

func TestChainIntactRejectsTamperedEvent(t *testing.T) {
	events := buildChain("", [2]string{"index", "documents"}, [2]string{"sync", "sql"})
	events[0].Username = "attacker"
	if chainIntact(events) {
		t.Fatal("tampered event passed verification")
	}
}

func TestChainIntactEmptyChain(t *testing.T) {
	if !chainIntact(nil) {
		t.Fatal("empty chain should verify")
	}
}
