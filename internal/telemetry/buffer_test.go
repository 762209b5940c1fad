package telemetry

import "testing"

func TestOutageQueue_EmptyDrainReturnsNil(t *testing.T) {
	q := newOutageQueue(10)
	if got := q.drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestOutageQueue_PushAndDrainPreservesOrder(t *testing.T) {
	q := newOutageQueue(10)
	for i := 0; i < 5; i++ {
		q.push(outageMsg{topic: "t", payload: []byte{byte(i)}})
	}

	got := q.drainAll()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}

	if got2 := q.drainAll(); got2 != nil {
		t.Errorf("expected nil from second drain, got %d items", len(got2))
	}
}

func TestOutageQueue_FillToCapacityKeepsEverything(t *testing.T) {
	const capacity = 10
	q := newOutageQueue(capacity)
	for i := 0; i < capacity; i++ {
		q.push(outageMsg{topic: "t", payload: []byte{byte(i)}})
	}

	got := q.drainAll()
	if len(got) != capacity {
		t.Fatalf("expected %d items, got %d", capacity, len(got))
	}
	for i := 0; i < capacity; i++ {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}
}

func TestOutageQueue_OverflowDropsOldestFirst(t *testing.T) {
	const capacity = 5
	q := newOutageQueue(capacity)

	// Push capacity+3 items (0..7); only the most recent 5 (3..7) survive.
	for i := 0; i < capacity+3; i++ {
		q.push(outageMsg{topic: "t", payload: []byte{byte(i)}})
	}

	got := q.drainAll()
	if len(got) != capacity {
		t.Fatalf("expected %d items, got %d", capacity, len(got))
	}
	for i := 0; i < capacity; i++ {
		want := byte(i + 3)
		if got[i].payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, got[i].payload[0])
		}
	}
	if q.dropped != 0 {
		t.Errorf("expected dropped counter reset after drain, got %d", q.dropped)
	}
}

func TestOutageQueue_MultipleFillDrainCycles(t *testing.T) {
	q := newOutageQueue(5)

	for i := 0; i < 3; i++ {
		q.push(outageMsg{topic: "t", payload: []byte{byte(i)}})
	}
	got := q.drainAll()
	if len(got) != 3 {
		t.Fatalf("cycle 1: expected 3 items, got %d", len(got))
	}

	for i := 10; i < 14; i++ {
		q.push(outageMsg{topic: "t", payload: []byte{byte(i)}})
	}
	got = q.drainAll()
	if len(got) != 4 {
		t.Fatalf("cycle 2: expected 4 items, got %d", len(got))
	}
	for i, msg := range got {
		want := byte(10 + i)
		if msg.payload[0] != want {
			t.Errorf("cycle 2 item %d: expected %d, got %d", i, want, msg.payload[0])
		}
	}
}

func TestOutageQueue_Len(t *testing.T) {
	q := newOutageQueue(10)
	if q.len() != 0 {
		t.Errorf("expected len 0, got %d", q.len())
	}

	q.push(outageMsg{topic: "t"})
	q.push(outageMsg{topic: "t"})
	if q.len() != 2 {
		t.Errorf("expected len 2, got %d", q.len())
	}

	q.drainAll()
	if q.len() != 0 {
		t.Errorf("expected len 0 after drain, got %d", q.len())
	}
}

func TestOutageQueue_PreservesAllFields(t *testing.T) {
	q := newOutageQueue(10)
	q.push(outageMsg{
		topic:    "reflowd/test",
		payload:  []byte(`{"test":true}`),
		qos:      1,
		retained: true,
	})

	got := q.drainAll()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	if got[0].topic != "reflowd/test" {
		t.Errorf("topic: got %s, want reflowd/test", got[0].topic)
	}
	if string(got[0].payload) != `{"test":true}` {
		t.Errorf("payload: got %s", got[0].payload)
	}
	if got[0].qos != 1 {
		t.Errorf("qos: got %d, want 1", got[0].qos)
	}
	if !got[0].retained {
		t.Error("retained: got false, want true")
	}
}
