package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
)

func counter(n int, a Action) (int, error) {
	switch a.Type {
	case "inc":
		return n + 1, nil
	case "add":
		return n + a.Payload.(int), nil
	case "fail":
		return n, errors.New("nope")
	}
	return n, nil
}

func TestDispatchUpdatesStateAndNotifies(t *testing.T) {
	s := New(counter, 0)

	calls := 0
	s.Subscribe(func() { calls++ })

	if err := s.Dispatch("inc"); err != nil {
		t.Fatal(err)
	}
	if err := s.Dispatch(Action{Type: "add", Payload: 5}); err != nil {
		t.Fatal(err)
	}

	if s.GetState() != 6 {
		t.Errorf("state = %d, want 6", s.GetState())
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDispatchInvalidAction(t *testing.T) {
	s := New(counter, 0)
	if err := s.Dispatch(42); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("expected ErrInvalidAction, got %v", err)
	}
	var nilAction *Action
	if err := s.Dispatch(nilAction); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("expected ErrInvalidAction for nil, got %v", err)
	}
}

func TestReducerErrorKeepsStateAndSkipsListeners(t *testing.T) {
	s := New(counter, 3)
	calls := 0
	s.Subscribe(func() { calls++ })

	if err := s.Dispatch("fail"); err == nil {
		t.Fatal("expected reducer error")
	}
	if s.GetState() != 3 || calls != 0 {
		t.Errorf("state = %d calls = %d", s.GetState(), calls)
	}
}

func TestReducerMayNotDispatch(t *testing.T) {
	var s *Store[int]
	var inner error
	s = New(func(n int, a Action) (int, error) {
		if a.Type == "outer" {
			inner = s.Dispatch("inc")
		}
		return n + 1, nil
	}, 0)

	if err := s.Dispatch("outer"); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(inner, ErrReducerDispatch) {
		t.Errorf("expected ErrReducerDispatch, got %v", inner)
	}
	if s.GetState() != 1 {
		t.Errorf("state = %d, want 1", s.GetState())
	}
}

func TestSubscribeDuringNotifyAppliesNextPass(t *testing.T) {
	s := New(counter, 0)

	var got []string
	added := false
	s.Subscribe(func() {
		got = append(got, "a")
		if !added {
			added = true
			s.Subscribe(func() { got = append(got, "late") })
		}
	})

	s.Dispatch("inc")
	s.Dispatch("inc")

	if want := []string{"a", "a", "late"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestUnsubscribeDuringNotifyAppliesNextPass(t *testing.T) {
	s := New(counter, 0)

	var got []string
	var removeB func()
	s.Subscribe(func() {
		got = append(got, "a")
		removeB()
	})
	removeB = s.Subscribe(func() { got = append(got, "b") })

	s.Dispatch("inc")
	s.Dispatch("inc")

	if want := []string{"a", "b", "a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	removeB()
	if s.ListenerCount() != 1 {
		t.Errorf("listeners = %d, want 1", s.ListenerCount())
	}
}

func TestDispatchFromListener(t *testing.T) {
	s := New(counter, 0)

	var seen []int
	s.Subscribe(func() {
		seen = append(seen, s.GetState())
		if s.GetState() < 3 {
			s.Dispatch("inc")
		}
	})

	s.Dispatch("inc")
	if want := []int{1, 2, 3}; !reflect.DeepEqual(seen, want) {
		t.Errorf("seen = %v, want %v", seen, want)
	}
}

func TestBatchNotifiesOnce(t *testing.T) {
	s := New(counter, 0)
	calls := 0
	s.Subscribe(func() { calls++ })

	s.Batch(func() {
		s.Dispatch("inc")
		s.Batch(func() {
			s.Dispatch("inc")
		})
		s.Dispatch("inc")
	})

	if s.GetState() != 3 {
		t.Errorf("state = %d, want 3", s.GetState())
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	s.Batch(func() {})
	if calls != 1 {
		t.Errorf("empty batch notified: calls = %d", calls)
	}
}

func TestReplaceReducer(t *testing.T) {
	s := New(counter, 1)
	s.ReplaceReducer(func(n int, a Action) (int, error) { return n * 10, nil })
	s.Dispatch("anything")
	if s.GetState() != 10 {
		t.Errorf("state = %d, want 10", s.GetState())
	}
}

func TestReducerPanicLeavesStoreUsable(t *testing.T) {
	s := New(counter, 1)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the reducer to panic")
			}
		}()
		s.Dispatch(Action{Type: "add", Payload: "one"})
	}()

	if s.GetState() != 1 {
		t.Errorf("state after panic = %d, want 1", s.GetState())
	}
	if err := s.Dispatch("inc"); err != nil {
		t.Fatalf("dispatch after panic: %v", err)
	}
	if s.GetState() != 2 {
		t.Errorf("state = %d, want 2", s.GetState())
	}
}

func TestOptions(t *testing.T) {
	s := New(counter, 0,
		WithTracer(noop.NewTracerProvider().Tracer("test")),
		WithContext(context.Background()),
		WithLogger(nil),
	)
	if err := s.Dispatch("inc"); err != nil {
		t.Fatal(err)
	}
	if s.GetState() != 1 {
		t.Errorf("state = %d, want 1", s.GetState())
	}
}
