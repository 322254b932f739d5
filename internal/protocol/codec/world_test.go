package codec

import (
	"bytes"
	"testing"

	"github.com/google/uuid"

	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/danmuck/reckoning/internal/testutil/testlog"
)

func TestEncodedWorldUpdateLenMatchesEncoding(t *testing.T) {
	testlog.Start(t)

	for _, op := range sampleOperations() {
		update, ok := op.(protocol.ServerWorldUpdate)
		if !ok {
			continue
		}
		got := len(encodeServerWorldUpdate(update, nil))
		if want := EncodedWorldUpdateLen(update); got != want {
			t.Fatalf("length mismatch: encoded=%d computed=%d", got, want)
		}
	}
}

func TestSplitWorldUpdateKeepsSmallUpdateWhole(t *testing.T) {
	testlog.Start(t)

	update := sampleOperations()[len(sampleOperations())-1].(protocol.ServerWorldUpdate)
	parts, err := SplitWorldUpdate(update, 0)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(parts) != 1 || !parts[0].Equal(update) {
		t.Fatalf("expected the update unchanged, got %d parts", len(parts))
	}
}

func TestSplitWorldUpdateRespectsLimit(t *testing.T) {
	testlog.Start(t)

	big := protocol.EntityUpdate{EntityID: uuid.New()}
	for i := 0; i < 12; i++ {
		big.Components = append(big.Components, protocol.Health(uint64(i)), protocol.Position{X: float64(i)})
	}
	update := protocol.ServerWorldUpdate{Updates: []protocol.EntityUpdate{
		{EntityID: uuid.New(), Components: []protocol.EntityComponent{protocol.Health(1)}},
		big,
		{EntityID: uuid.New()},
		{EntityID: uuid.New(), Components: []protocol.EntityComponent{protocol.Position{Y: 2}}},
	}}

	const limit = 128
	parts, err := SplitWorldUpdate(update, limit)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(parts) < 2 {
		t.Fatalf("expected several parts, got %d", len(parts))
	}

	// Concatenating the parts' components per entity restores the input.
	merged := map[uuid.UUID][]protocol.EntityComponent{}
	var order []uuid.UUID
	c := New()
	for i, part := range parts {
		if n := EncodedWorldUpdateLen(part); n > limit {
			t.Fatalf("part %d encodes to %d bytes", i, n)
		}
		var buf bytes.Buffer
		if err := c.Encode(part, &buf); err != nil {
			t.Fatalf("encode part %d: %v", i, err)
		}
		for _, entity := range part.Updates {
			if _, seen := merged[entity.EntityID]; !seen {
				order = append(order, entity.EntityID)
			}
			merged[entity.EntityID] = append(merged[entity.EntityID], entity.Components...)
		}
	}
	if len(order) != len(update.Updates) {
		t.Fatalf("expected %d entities, got %d", len(update.Updates), len(order))
	}
	for i, entity := range update.Updates {
		if order[i] != entity.EntityID {
			t.Fatalf("entity order changed at %d", i)
		}
		restored := protocol.EntityUpdate{EntityID: entity.EntityID, Components: merged[entity.EntityID]}
		if !restored.Equal(entity) {
			t.Fatalf("entity %s components changed", entity.EntityID)
		}
	}
}

func TestSplitWorldUpdateRejectsTinyLimit(t *testing.T) {
	testlog.Start(t)

	if _, err := SplitWorldUpdate(protocol.ServerWorldUpdate{}, 16); err == nil {
		t.Fatalf("expected error for limit below one entity")
	}
}
