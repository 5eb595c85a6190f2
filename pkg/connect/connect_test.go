package connect

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/vango-dev/connect/pkg/selector"
	"github.com/vango-dev/connect/pkg/store"
)

type appState struct {
	Count int
	Name  string
	Other int
}

type itemProps struct {
	Label string
}

type view struct {
	Count int
	Label string
}

func reducer(s *appState, a store.Action) (*appState, error) {
	next := *s
	switch a.Type {
	case "inc":
		next.Count++
	case "other":
		next.Other++
	case "rename":
		next.Name = a.Payload.(string)
	case "fail":
		return s, stderrors.New("reducer failed")
	}
	return &next, nil
}

func newStore() *store.Store[*appState] {
	return store.New(reducer, &appState{Count: 0, Name: "a"})
}

// recorder collects an ordered log of derive and render calls.
type recorder struct {
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

type countConnector = Connector[*appState, itemProps, view, selector.Dispatch, *view]

func newCountConnector(t *testing.T, name string, rec *recorder, opts ...Option) *countConnector {
	t.Helper()
	c, err := New(Spec[*appState, itemProps, view, selector.Dispatch, *view]{
		State: selector.StateProjection[*appState, itemProps, view]{
			Fn: func(s *appState, p itemProps) (view, error) {
				rec.add("%s.derive", name)
				return view{Count: s.Count, Label: p.Label}, nil
			},
			DependsOnOwnProps: true,
		},
		Dispatch: selector.DispatchOnly[itemProps](),
		Merge: func(sp view, _ selector.Dispatch, _ itemProps) (*view, error) {
			v := sp
			return &v, nil
		},
	}, append([]Option{WithDisplayName(name)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func renderInto(rec *recorder, name string) RenderFunc[*view] {
	return func(v *view) error {
		rec.add("%s.render(%d)", name, v.Count)
		return nil
	}
}

func TestRootChildOrdering(t *testing.T) {
	st := newStore()
	provider := NewProvider[*appState](st)
	rec := &recorder{}

	root, err := newCountConnector(t, "root", rec).Mount(provider, itemProps{}, renderInto(rec, "root"))
	if err != nil {
		t.Fatal(err)
	}
	child, err := newCountConnector(t, "child", rec).Mount(root, itemProps{}, renderInto(rec, "child"))
	if err != nil {
		t.Fatal(err)
	}
	if !root.IsSubscribed() || !child.IsSubscribed() {
		t.Fatal("both consumers should be subscribed")
	}
	if st.ListenerCount() != 1 {
		t.Errorf("store listeners = %d, want 1 (only the root)", st.ListenerCount())
	}

	rec.events = nil
	if err := st.Dispatch("inc"); err != nil {
		t.Fatal(err)
	}

	want := []string{"root.derive", "root.render(1)", "child.derive", "child.render(1)"}
	if !reflect.DeepEqual(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
}

func TestOrderingHoldsWithDeferredScheduler(t *testing.T) {
	st := newStore()
	provider := NewProvider[*appState](st)
	rec := &recorder{}
	sched := &QueueScheduler{}

	root, _ := newCountConnector(t, "root", rec, WithScheduler(sched)).Mount(provider, itemProps{}, renderInto(rec, "root"))
	mid, _ := newCountConnector(t, "mid", rec, WithScheduler(sched)).Mount(root, itemProps{}, renderInto(rec, "mid"))
	newCountConnector(t, "leaf", rec, WithScheduler(sched)).Mount(mid, itemProps{}, renderInto(rec, "leaf"))

	rec.events = nil
	st.Dispatch("inc")

	if want := []string{"root.derive"}; !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("before flush: %v, want %v", rec.events, want)
	}
	if !root.IsPendingNotify() {
		t.Error("root should wait for its render before notifying")
	}

	sched.Flush()

	want := []string{
		"root.derive",
		"root.render(1)", "mid.derive",
		"mid.render(1)", "leaf.derive",
		"leaf.render(1)",
	}
	if !reflect.DeepEqual(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
	if root.IsPendingNotify() {
		t.Error("root should be idle after its render")
	}
}

func TestUnchangedParentPassesThrough(t *testing.T) {
	st := newStore()
	provider := NewProvider[*appState](st)
	rec := &recorder{}

	nameConn, err := New(Spec[*appState, itemProps, string, struct{}, string]{
		State: selector.MapState[*appState, itemProps](func(s *appState) string {
			rec.add("root.derive")
			return s.Name
		}),
		Dispatch: selector.DispatchProjection[itemProps, struct{}]{
			Fn: func(selector.Dispatch, itemProps) (struct{}, error) { return struct{}{}, nil },
		},
		Merge: func(name string, _ struct{}, _ itemProps) (string, error) { return name, nil },
	})
	if err != nil {
		t.Fatal(err)
	}

	root, _ := nameConn.Mount(provider, itemProps{}, func(string) error {
		rec.add("root.render")
		return nil
	})
	newCountConnector(t, "child", rec).Mount(root, itemProps{}, renderInto(rec, "child"))

	rec.events = nil
	st.Dispatch("inc")

	want := []string{"root.derive", "child.derive", "child.render(1)"}
	if !reflect.DeepEqual(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
	if root.RenderCount() != 1 {
		t.Errorf("root renders = %d, want 1", root.RenderCount())
	}
}

func TestUnrelatedChangeDoesNotRender(t *testing.T) {
	st := newStore()
	rec := &recorder{}
	c, _ := newCountConnector(t, "c", rec).Mount(NewProvider[*appState](st), itemProps{}, renderInto(rec, "c"))

	before := c.Props()
	st.Dispatch("other")

	if c.RenderCount() != 1 {
		t.Errorf("renders = %d, want 1", c.RenderCount())
	}
	if c.Props() != before {
		t.Error("props should keep the same reference")
	}
}

func TestUnmountDuringPassStopsDescendants(t *testing.T) {
	st := newStore()
	provider := NewProvider[*appState](st)
	rec := &recorder{}

	var child *Consumer[*appState, itemProps, view, selector.Dispatch, *view]
	root, _ := newCountConnector(t, "root", rec).Mount(provider, itemProps{}, func(v *view) error {
		rec.add("root.render(%d)", v.Count)
		return nil
	})
	child, _ = newCountConnector(t, "child", rec).Mount(root, itemProps{}, func(v *view) error {
		rec.add("child.render(%d)", v.Count)
		if v.Count == 1 {
			child.Unmount()
		}
		return nil
	})
	newCountConnector(t, "grandchild", rec).Mount(child, itemProps{}, renderInto(rec, "grandchild"))

	rec.events = nil
	st.Dispatch("inc")

	want := []string{"root.derive", "root.render(1)", "child.derive", "child.render(1)"}
	if !reflect.DeepEqual(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
	if child.IsSubscribed() {
		t.Error("child should be unsubscribed")
	}

	rec.events = nil
	st.Dispatch("inc")
	if want := []string{"root.derive", "root.render(2)"}; !reflect.DeepEqual(rec.events, want) {
		t.Errorf("after unmount: %v, want %v", rec.events, want)
	}
}

func TestUnmountBeforeScheduledRender(t *testing.T) {
	st := newStore()
	rec := &recorder{}
	sched := &QueueScheduler{}
	c, _ := newCountConnector(t, "c", rec, WithScheduler(sched)).Mount(NewProvider[*appState](st), itemProps{}, renderInto(rec, "c"))

	st.Dispatch("inc")
	c.Unmount()
	c.Unmount()
	sched.Flush()

	if c.RenderCount() != 1 {
		t.Errorf("renders = %d, want 1", c.RenderCount())
	}
	if st.ListenerCount() != 0 {
		t.Errorf("store listeners = %d, want 0", st.ListenerCount())
	}
	if err := c.ReceiveProps(itemProps{Label: "x"}); !stderrors.Is(err, ErrUnmounted) {
		t.Errorf("ReceiveProps after unmount: %v", err)
	}
}

func TestReceiveProps(t *testing.T) {
	st := newStore()
	rec := &recorder{}
	c, _ := newCountConnector(t, "c", rec).Mount(NewProvider[*appState](st), itemProps{Label: "a"}, renderInto(rec, "c"))

	if err := c.ReceiveProps(itemProps{Label: "a"}); err != nil {
		t.Fatal(err)
	}
	if c.RenderCount() != 1 {
		t.Errorf("same props should not render, renders = %d", c.RenderCount())
	}

	if err := c.ReceiveProps(itemProps{Label: "b"}); err != nil {
		t.Fatal(err)
	}
	if c.RenderCount() != 2 || c.Props().Label != "b" {
		t.Errorf("renders = %d props = %+v", c.RenderCount(), c.Props())
	}
}

func TestStoreMissing(t *testing.T) {
	rec := &recorder{}
	_, err := newCountConnector(t, "Lonely", rec).Mount(nil, itemProps{}, renderInto(rec, "x"))
	if !stderrors.Is(err, ErrStoreMissing) {
		t.Fatalf("expected ErrStoreMissing, got %v", err)
	}
}

func TestMountUnderUnmountedParent(t *testing.T) {
	rec := &recorder{}
	parent, err := newCountConnector(t, "parent", rec).Mount(NewProvider[*appState](newStore()), itemProps{}, renderInto(rec, "parent"))
	if err != nil {
		t.Fatal(err)
	}
	parent.Unmount()

	_, err = newCountConnector(t, "orphan", rec).Mount(parent, itemProps{}, renderInto(rec, "orphan"))
	if !stderrors.Is(err, ErrUnmounted) {
		t.Fatalf("expected ErrUnmounted, got %v", err)
	}
}

func TestInvalidSpec(t *testing.T) {
	_, err := New(Spec[int, int, int, int, int]{})
	if !stderrors.Is(err, selector.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestProjectionErrorSurfacesOnRender(t *testing.T) {
	st := newStore()
	fail := false
	conn, err := New(Spec[*appState, itemProps, int, struct{}, int]{
		State: selector.StateProjection[*appState, itemProps, int]{
			Fn: func(s *appState, _ itemProps) (int, error) {
				if fail {
					return 0, stderrors.New("projection failed")
				}
				return s.Count, nil
			},
		},
		Dispatch: selector.DispatchProjection[itemProps, struct{}]{
			Fn: func(selector.Dispatch, itemProps) (struct{}, error) { return struct{}{}, nil },
		},
		Merge: func(n int, _ struct{}, _ itemProps) (int, error) { return n, nil },
	})
	if err != nil {
		t.Fatal(err)
	}

	renders := 0
	c, err := conn.Mount(NewProvider[*appState](st), itemProps{}, func(int) error {
		renders++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	fail = true
	st.Dispatch("inc")
	if c.Err() == nil {
		t.Fatal("expected the projection error to surface")
	}
	if renders != 1 {
		t.Errorf("render func should not run with an error, renders = %d", renders)
	}

	fail = false
	st.Dispatch("inc")
	if c.Err() != nil {
		t.Errorf("error should clear after a successful derivation: %v", c.Err())
	}
	if c.Props() != 2 || renders != 2 {
		t.Errorf("props = %d renders = %d", c.Props(), renders)
	}
}

// counterView is a value type with a callback, so == cannot compare it.
type counterView struct {
	Count int
	Inc   func() error
}

func TestValuePropsWithCallbacksRenderOnlyOnMerge(t *testing.T) {
	st := newStore()
	conn, err := New(Spec[*appState, itemProps, int, selector.Dispatch, counterView]{
		State:    selector.MapState[*appState, itemProps](func(s *appState) int { return s.Count }),
		Dispatch: selector.DispatchOnly[itemProps](),
		Merge: func(n int, dispatch selector.Dispatch, _ itemProps) (counterView, error) {
			return counterView{Count: n, Inc: func() error { return dispatch("inc") }}, nil
		},
	}, WithDisplayName("Counter"))
	if err != nil {
		t.Fatal(err)
	}

	var rendered []int
	c, err := conn.Mount(NewProvider[*appState](st), itemProps{}, func(v counterView) error {
		rendered = append(rendered, v.Count)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	st.Dispatch("other")
	st.Dispatch("other")
	if c.RenderCount() != 1 {
		t.Errorf("absorbed state changes rendered: renders = %d", c.RenderCount())
	}
	if err := c.ReceiveProps(itemProps{}); err != nil {
		t.Fatal(err)
	}
	if c.RenderCount() != 1 {
		t.Errorf("unchanged own props rendered: renders = %d", c.RenderCount())
	}

	if err := c.Props().Inc(); err != nil {
		t.Fatal(err)
	}
	want := []int{0, 1}
	if !reflect.DeepEqual(rendered, want) {
		t.Errorf("rendered = %v, want %v", rendered, want)
	}
}

func TestFailedDeriveRetriedWithSameInputs(t *testing.T) {
	st := newStore()
	failures := 0
	conn, err := New(Spec[*appState, itemProps, int, struct{}, view]{
		State: selector.MapState[*appState, itemProps](func(s *appState) int { return s.Count }),
		Dispatch: selector.DispatchProjection[itemProps, struct{}]{
			Fn: func(selector.Dispatch, itemProps) (struct{}, error) { return struct{}{}, nil },
		},
		Merge: func(n int, _ struct{}, p itemProps) (view, error) {
			if n == 1 && failures == 0 {
				failures++
				return view{}, stderrors.New("merge failed")
			}
			return view{Count: n, Label: p.Label}, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	var rendered []int
	c, err := conn.Mount(NewProvider[*appState](st), itemProps{Label: "a"}, func(v view) error {
		rendered = append(rendered, v.Count)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	st.Dispatch("inc")
	if c.Err() == nil {
		t.Fatal("expected the merge error to surface")
	}

	if err := c.ReceiveProps(itemProps{Label: "a"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if c.Err() != nil {
		t.Errorf("error should clear after the retry: %v", c.Err())
	}
	if c.Props().Count != 1 {
		t.Errorf("retry served stale props: %+v, store count = %d", c.Props(), st.GetState().Count)
	}
	want := []int{0, 1}
	if !reflect.DeepEqual(rendered, want) {
		t.Errorf("rendered = %v, want %v", rendered, want)
	}
}

func TestRenderErrorSkipsDescendants(t *testing.T) {
	st := newStore()
	provider := NewProvider[*appState](st)
	rec := &recorder{}

	root, _ := newCountConnector(t, "root", rec).Mount(provider, itemProps{}, func(v *view) error {
		if v.Count == 1 {
			return stderrors.New("draw failed")
		}
		return nil
	})
	newCountConnector(t, "child", rec).Mount(root, itemProps{}, renderInto(rec, "child"))

	rec.events = nil
	st.Dispatch("inc")

	if root.Err() == nil {
		t.Error("root should report its render error")
	}
	for _, e := range rec.events {
		if e == "child.derive" {
			t.Errorf("child should not be notified after a failed render: %v", rec.events)
		}
	}
}

func TestNoStateChanges(t *testing.T) {
	st := newStore()
	rec := &recorder{}
	c, err := newCountConnector(t, "static", rec, WithStateChanges(false)).Mount(NewProvider[*appState](st), itemProps{}, renderInto(rec, "static"))
	if err != nil {
		t.Fatal(err)
	}

	st.Dispatch("inc")

	if c.IsSubscribed() {
		t.Error("consumer should not subscribe")
	}
	if st.ListenerCount() != 0 {
		t.Errorf("store listeners = %d, want 0", st.ListenerCount())
	}
	if c.RenderCount() != 1 {
		t.Errorf("renders = %d, want 1", c.RenderCount())
	}
}

func TestNonSubscribingParentIsTransparent(t *testing.T) {
	st := newStore()
	provider := NewProvider[*appState](st)
	rec := &recorder{}

	mid, _ := newCountConnector(t, "mid", rec, WithStateChanges(false)).Mount(provider, itemProps{}, renderInto(rec, "mid"))
	leaf, _ := newCountConnector(t, "leaf", rec).Mount(mid, itemProps{}, renderInto(rec, "leaf"))

	if mid.Subscription() != nil {
		t.Error("a non-subscribing consumer should pass the provider's nil subscription through")
	}
	st.Dispatch("inc")
	if leaf.RenderCount() != 2 {
		t.Errorf("leaf renders = %d, want 2", leaf.RenderCount())
	}
}

func TestWithStoreIsTransparentToDescendants(t *testing.T) {
	outer := newStore()
	inner := newStore()
	provider := NewProvider[*appState](outer)
	rec := &recorder{}

	root, _ := newCountConnector(t, "root", rec).Mount(provider, itemProps{}, renderInto(rec, "root"))
	island, err := newCountConnector(t, "island", rec).Mount(root, itemProps{}, renderInto(rec, "island"), WithStore[*appState](inner))
	if err != nil {
		t.Fatal(err)
	}
	leaf, _ := newCountConnector(t, "leaf", rec).Mount(island, itemProps{}, renderInto(rec, "leaf"))

	if island.Store() != Store[*appState](outer) {
		t.Error("descendants of a WithStore consumer should see the outer store")
	}
	if island.Subscription() != root.OwnSubscription() {
		t.Error("descendants of a WithStore consumer should attach to the outer tree")
	}
	if inner.ListenerCount() != 1 {
		t.Errorf("inner store listeners = %d, want 1", inner.ListenerCount())
	}

	inner.Dispatch("inc")
	if island.RenderCount() != 2 || leaf.RenderCount() != 1 {
		t.Errorf("inner dispatch: island renders = %d, leaf renders = %d", island.RenderCount(), leaf.RenderCount())
	}

	outer.Dispatch("inc")
	if leaf.RenderCount() != 2 || island.RenderCount() != 2 {
		t.Errorf("outer dispatch: island renders = %d, leaf renders = %d", island.RenderCount(), leaf.RenderCount())
	}
}

func TestRebuildReattachesTree(t *testing.T) {
	st := newStore()
	provider := NewProvider[*appState](st)
	rec := &recorder{}

	root, _ := newCountConnector(t, "root", rec).Mount(provider, itemProps{}, renderInto(rec, "root"))
	child, _ := newCountConnector(t, "child", rec).Mount(root, itemProps{}, renderInto(rec, "child"))
	oldSub := root.OwnSubscription()

	if err := provider.Reload(); err != nil {
		t.Fatal(err)
	}
	if root.OwnSubscription() == oldSub {
		t.Error("rebuild should create a new subscription node")
	}
	if oldSub.IsSubscribed() {
		t.Error("old node should be detached")
	}
	if st.ListenerCount() != 1 {
		t.Errorf("store listeners = %d, want 1", st.ListenerCount())
	}

	rec.events = nil
	st.Dispatch("inc")
	want := []string{"root.derive", "root.render(1)", "child.derive", "child.render(1)"}
	if !reflect.DeepEqual(rec.events, want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}

	child.Unmount()
	if err := child.Rebuild(); !stderrors.Is(err, ErrUnmounted) {
		t.Errorf("Rebuild after unmount: %v", err)
	}
}

func TestImpureConsumerAlwaysRenders(t *testing.T) {
	st := newStore()
	rec := &recorder{}
	c, _ := newCountConnector(t, "c", rec, WithPure(false)).Mount(NewProvider[*appState](st), itemProps{}, renderInto(rec, "c"))

	// Every derivation counts as a change, including the one after subscribing.
	mounted := c.RenderCount()
	if mounted != 2 {
		t.Errorf("renders after mount = %d, want 2", mounted)
	}

	st.Dispatch("other")
	if c.RenderCount() != mounted+1 {
		t.Errorf("renders = %d, want %d", c.RenderCount(), mounted+1)
	}
}

type countingObserver struct {
	NopObserver
	mounts, unmounts, renders, notifies int
	changes                             []selector.Change
}

func (o *countingObserver) OnMount(Info)         { o.mounts++ }
func (o *countingObserver) OnUnmount(Info)       { o.unmounts++ }
func (o *countingObserver) OnRender(Info, error) { o.renders++ }
func (o *countingObserver) OnNotify(Info, int)   { o.notifies++ }
func (o *countingObserver) OnDerive(_ Info, c selector.Change, _ bool, _ error) {
	o.changes = append(o.changes, c)
}

func TestObserver(t *testing.T) {
	st := newStore()
	obs := &countingObserver{}
	rec := &recorder{}
	c, _ := newCountConnector(t, "c", rec, WithObserver(Observers{obs, NopObserver{}})).Mount(NewProvider[*appState](st), itemProps{}, renderInto(rec, "c"))

	st.Dispatch("inc")
	c.Unmount()

	if obs.mounts != 1 || obs.unmounts != 1 {
		t.Errorf("mounts = %d unmounts = %d", obs.mounts, obs.unmounts)
	}
	if obs.renders != 2 || obs.notifies != 1 {
		t.Errorf("renders = %d notifies = %d", obs.renders, obs.notifies)
	}
	want := []selector.Change{selector.Initial, selector.Unchanged, selector.RecomputeState}
	if !reflect.DeepEqual(obs.changes, want) {
		t.Errorf("changes = %v, want %v", obs.changes, want)
	}
}
