package bus

import (
	"context"
	"testing"
	"time"

	"marketviz/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.StreamBar, 10)
	ctx, cancel := context.WithCancel(context.Background())
	go fo.Run(ctx, input)

	bar := model.StreamBar{
		Symbol: "NSE:SBIN",
		TF:     60,
		Open:   100,
		High:   110,
		Low:    90,
		Close:  105,
	}

	input <- bar
	time.Sleep(50 * time.Millisecond)

	select {
	case b := <-out1:
		if b.Symbol != "NSE:SBIN" {
			t.Errorf("out1: expected symbol NSE:SBIN, got %s", b.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out1: timed out waiting for bar")
	}

	select {
	case b := <-out2:
		if b.Symbol != "NSE:SBIN" {
			t.Errorf("out2: expected symbol NSE:SBIN, got %s", b.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for bar")
	}

	cancel()
}

func TestFanOut_DropOnFullSubscriber(t *testing.T) {
	fo := New(1)
	_ = fo.Subscribe() // never drained

	var drops int
	fo.OnDrop = func(int) { drops++ }

	input := make(chan model.StreamBar, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	for i := 0; i < 3; i++ {
		input <- model.StreamBar{Symbol: "NSE:SBIN", TF: 60}
	}
	time.Sleep(50 * time.Millisecond)

	if drops < 1 {
		t.Fatalf("expected drops for slow subscriber, got %d", drops)
	}
}
