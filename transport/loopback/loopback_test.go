package loopback

import (
	"testing"
	"time"

	"github.com/canepat/helios/transport"
)

func TestOfferThenPollDelivers(t *testing.T) {
	tp := New()

	pub, err := tp.AddPublication("chan", 1)
	if err != nil {
		t.Fatalf("AddPublication: %v", err)
	}
	sub, err := tp.AddSubscription("chan", 1)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}

	payload := []byte("payload")
	if pos, err := pub.Offer(payload, 0, len(payload)); err != nil || pos < 0 {
		t.Fatalf("Offer() = %d, %v", pos, err)
	}

	var got []byte
	n, err := sub.Poll(func(msgTypeID int32, buf []byte, sessionID int32, flags transport.FragmentFlags) {
		got = append([]byte(nil), buf...)
	}, 10)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 1 {
		t.Fatalf("Poll delivered %d fragments, want 1", n)
	}
	if string(got) != "payload" {
		t.Errorf("delivered payload = %q, want %q", got, "payload")
	}
}

func TestPollOnEmptyQueueReturnsZero(t *testing.T) {
	tp := New()
	sub, _ := tp.AddSubscription("chan", 1)

	n, err := sub.Poll(func(int32, []byte, int32, transport.FragmentFlags) {}, 10)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 0 {
		t.Errorf("Poll() = %d, want 0", n)
	}
}

func TestClosedSubscriptionReturnsErrClosed(t *testing.T) {
	tp := New()
	sub, _ := tp.AddSubscription("chan", 1)
	sub.Close()

	if _, err := sub.Poll(func(int32, []byte, int32, transport.FragmentFlags) {}, 1); err != transport.ErrClosed {
		t.Errorf("Poll after Close error = %v, want ErrClosed", err)
	}
}

func TestDistinctStreamsDoNotCrossDeliver(t *testing.T) {
	tp := New()
	pubA, _ := tp.AddPublication("chan", 1)
	_, _ = tp.AddSubscription("chan", 1)
	subB, _ := tp.AddSubscription("chan", 2)

	pubA.Offer([]byte("x"), 0, 1)

	n, _ := subB.Poll(func(int32, []byte, int32, transport.FragmentFlags) {}, 10)
	if n != 0 {
		t.Errorf("subscription on a different stream observed %d fragments, want 0", n)
	}
}

func TestBackpressureWhenQueueFull(t *testing.T) {
	tp := New()
	pub, _ := tp.AddPublication("chan", 1)

	var lastPos int64
	var lastErr error
	for i := 0; i < 5000; i++ {
		lastPos, lastErr = pub.Offer([]byte("x"), 0, 1)
		if lastErr != nil {
			t.Fatalf("Offer: %v", lastErr)
		}
		if lastPos == transport.BackPressured {
			return
		}
	}
	t.Fatal("expected loopback queue to report backpressure before 5000 unread offers")
}

func TestClosedPublicationReturnsErrClosed(t *testing.T) {
	tp := New()
	pub, _ := tp.AddPublication("chan", 1)
	pub.Close()

	if pos, err := pub.Offer([]byte("x"), 0, 1); err != transport.ErrClosed || pos != transport.Closed {
		t.Errorf("Offer after Close = (%d, %v), want (%d, ErrClosed)", pos, err, transport.Closed)
	}
}

func TestPollRespectsLimit(t *testing.T) {
	tp := New()
	pub, _ := tp.AddPublication("chan", 1)
	sub, _ := tp.AddSubscription("chan", 1)

	for i := 0; i < 5; i++ {
		pub.Offer([]byte("x"), 0, 1)
	}

	n, err := sub.Poll(func(int32, []byte, int32, transport.FragmentFlags) {}, 3)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 3 {
		t.Fatalf("Poll(limit=3) delivered %d, want 3", n)
	}

	time.Sleep(time.Millisecond) // let any async state settle before the second poll
	n, err = sub.Poll(func(int32, []byte, int32, transport.FragmentFlags) {}, 10)
	if err != nil {
		t.Fatalf("second Poll: %v", err)
	}
	if n != 2 {
		t.Errorf("second Poll delivered %d, want 2 remaining fragments", n)
	}
}
