package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	cerrors "github.com/vango-dev/connect/internal/errors"
	"github.com/vango-dev/connect/pkg/connect"
	"github.com/vango-dev/connect/pkg/selector"
	"github.com/vango-dev/connect/pkg/store"
)

// State is the store state a scenario runs against: a JSON object.
type State = map[string]any

// Props are a scenario consumer's own props and final props.
type Props = map[string]any

type consumer = connect.Consumer[State, Props, Props, selector.Dispatch, Props]

// Scenario describes a store, a consumer tree and a list of steps.
type Scenario struct {
	State     State          `json:"state"`
	Consumers []ConsumerSpec `json:"consumers"`
	Steps     []Step         `json:"steps"`
}

// ConsumerSpec describes one consumer and its children.
type ConsumerSpec struct {
	Name string `json:"name"`

	// Select lists the top-level state keys the consumer reads.
	Select []string `json:"select"`

	// Props are the initial own props.
	Props Props `json:"props,omitempty"`

	// UsesProps makes the state projection depend on own props: the keys
	// named by the "select" own prop are read in addition to Select.
	UsesProps bool `json:"usesProps,omitempty"`

	// Impure turns memoization off.
	Impure bool `json:"impure,omitempty"`

	Children []ConsumerSpec `json:"children,omitempty"`
}

// Step is one scenario step.
//
//	set     {"op":"set","key":"x","value":1}
//	delete  {"op":"delete","key":"x"}
//	merge   {"op":"merge","value":{"a":1,"b":2}}
//	props   {"op":"props","consumer":"Row","value":{"label":"b"}}
//	unmount {"op":"unmount","consumer":"Row"}
//	reload  {"op":"reload"}
type Step struct {
	Op       string `json:"op"`
	Key      string `json:"key,omitempty"`
	Value    any    `json:"value,omitempty"`
	Consumer string `json:"consumer,omitempty"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerrors.New("X001").
				WithDetail("No scenario file at " + path)
		}
		return nil, cerrors.New("X002").Wrap(err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, cerrors.New("X002").
			WithDetail("Failed to parse scenario: " + err.Error()).
			Wrap(err)
	}
	if sc.State == nil {
		sc.State = State{}
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	names := make(map[string]bool)
	var walk func(specs []ConsumerSpec) error
	walk = func(specs []ConsumerSpec) error {
		for _, c := range specs {
			if c.Name == "" {
				return invalidScenario("every consumer needs a name")
			}
			if names[c.Name] {
				return invalidScenario(fmt.Sprintf("consumer name %q is used twice", c.Name))
			}
			names[c.Name] = true
			if err := walk(c.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(sc.Consumers); err != nil {
		return err
	}

	for i, st := range sc.Steps {
		switch st.Op {
		case "set", "delete":
			if st.Key == "" {
				return invalidScenario(fmt.Sprintf("step %d: %s needs a key", i+1, st.Op))
			}
		case "merge":
			if _, ok := st.Value.(map[string]any); !ok {
				return invalidScenario(fmt.Sprintf("step %d: merge needs an object value", i+1))
			}
		case "props", "unmount":
			if !names[st.Consumer] {
				return invalidScenario(fmt.Sprintf("step %d: unknown consumer %q", i+1, st.Consumer))
			}
			if st.Op == "props" {
				if _, ok := st.Value.(map[string]any); !ok {
					return invalidScenario(fmt.Sprintf("step %d: props needs an object value", i+1))
				}
			}
		case "reload":
		default:
			return invalidScenario(fmt.Sprintf("step %d: unknown op %q", i+1, st.Op))
		}
	}
	return nil
}

func invalidScenario(detail string) error {
	return cerrors.New("X002").WithDetail(detail)
}

// reduce applies set, delete and merge actions. Every change returns a new
// map so consumers see a new state reference.
func reduce(s State, a store.Action) (State, error) {
	switch a.Type {
	case "set":
		p, ok := a.Payload.(Step)
		if !ok {
			return s, fmt.Errorf("set: payload is %T", a.Payload)
		}
		next := copyState(s)
		next[p.Key] = p.Value
		return next, nil
	case "delete":
		p, ok := a.Payload.(Step)
		if !ok {
			return s, fmt.Errorf("delete: payload is %T", a.Payload)
		}
		if _, exists := s[p.Key]; !exists {
			return s, nil
		}
		next := copyState(s)
		delete(next, p.Key)
		return next, nil
	case "merge":
		values, ok := a.Payload.(map[string]any)
		if !ok {
			return s, fmt.Errorf("merge: payload is %T", a.Payload)
		}
		next := copyState(s)
		for k, v := range values {
			next[k] = v
		}
		return next, nil
	}
	return s, nil
}

// reduceJSON is reduce for actions decoded from JSON, where the payload of
// set and delete is an object instead of a Step.
func reduceJSON(s State, a store.Action) (State, error) {
	if m, ok := a.Payload.(map[string]any); ok && (a.Type == "set" || a.Type == "delete") {
		key, _ := m["key"].(string)
		a.Payload = Step{Op: a.Type, Key: key, Value: m["value"]}
	}
	return reduce(s, a)
}

func copyState(s State) State {
	next := make(State, len(s)+1)
	for k, v := range s {
		next[k] = v
	}
	return next
}

// Tree is a mounted scenario: a store, a provider and consumers by name.
type Tree struct {
	Store     connect.Store[State]
	Provider  *connect.Provider[State]
	Consumers map[string]*consumer
	order     []string
}

// Mount mounts the scenario's consumer tree on st.
func (sc *Scenario) Mount(st connect.Store[State], opts ...connect.Option) (*Tree, error) {
	t := &Tree{
		Store:     st,
		Provider:  connect.NewProvider(st),
		Consumers: make(map[string]*consumer),
	}
	var mount func(parent connect.Parent[State], specs []ConsumerSpec) error
	mount = func(parent connect.Parent[State], specs []ConsumerSpec) error {
		for _, spec := range specs {
			conn, err := newConnector(spec, opts...)
			if err != nil {
				return err
			}
			c, err := conn.Mount(parent, spec.Props, nil)
			if err != nil {
				return err
			}
			t.Consumers[spec.Name] = c
			t.order = append(t.order, spec.Name)
			if err := mount(c, spec.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := mount(t.Provider, sc.Consumers); err != nil {
		return nil, err
	}
	return t, nil
}

func newConnector(spec ConsumerSpec, opts ...connect.Option) (*connect.Connector[State, Props, Props, selector.Dispatch, Props], error) {
	keys := append([]string(nil), spec.Select...)
	state := selector.StateProjection[State, Props, Props]{
		Fn: func(s State, own Props) (Props, error) {
			out := make(Props, len(keys))
			for _, k := range keys {
				if v, ok := s[k]; ok {
					out[k] = v
				}
			}
			if spec.UsesProps {
				for _, k := range ownKeys(own) {
					if v, ok := s[k]; ok {
						out[k] = v
					}
				}
			}
			return out, nil
		},
		DependsOnOwnProps: spec.UsesProps,
	}

	return connect.New(connect.Spec[State, Props, Props, selector.Dispatch, Props]{
		State:    state,
		Dispatch: selector.DispatchOnly[Props](),
		Merge: func(sp Props, _ selector.Dispatch, own Props) (Props, error) {
			out := make(Props, len(own)+len(sp))
			for k, v := range own {
				out[k] = v
			}
			for k, v := range sp {
				out[k] = v
			}
			return out, nil
		},
	}, append([]connect.Option{
		connect.WithDisplayName(spec.Name),
		connect.WithPure(!spec.Impure),
	}, opts...)...)
}

// ownKeys reads the "select" own prop: a string or a list of strings.
func ownKeys(own Props) []string {
	switch v := own["select"].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Apply runs one step against the tree.
func (t *Tree) Apply(st Step) error {
	switch st.Op {
	case "set", "delete":
		return t.Store.Dispatch(store.Action{Type: st.Op, Payload: st})
	case "merge":
		return t.Store.Dispatch(store.Action{Type: st.Op, Payload: st.Value})
	case "props":
		c, err := t.consumer(st.Consumer)
		if err != nil {
			return err
		}
		return c.ReceiveProps(st.Value.(map[string]any))
	case "unmount":
		c, err := t.consumer(st.Consumer)
		if err != nil {
			return err
		}
		c.Unmount()
		return nil
	case "reload":
		return t.Provider.Reload()
	}
	return invalidScenario(fmt.Sprintf("unknown op %q", st.Op))
}

func (t *Tree) consumer(name string) (*consumer, error) {
	c, ok := t.Consumers[name]
	if !ok {
		return nil, invalidScenario(fmt.Sprintf("unknown consumer %q", name))
	}
	return c, nil
}

// Summary returns one line per consumer in mount order.
func (t *Tree) Summary() []string {
	lines := make([]string, 0, len(t.order))
	for _, name := range t.order {
		c := t.Consumers[name]
		status := "mounted"
		if c.IsUnmounted() {
			status = "unmounted"
		}
		lines = append(lines, fmt.Sprintf("%-16s renders=%d %s props=%s",
			name, c.RenderCount(), status, compactJSON(c.Props())))
	}
	return lines
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// NewStore creates the store a scenario runs against.
func (sc *Scenario) NewStore(opts ...store.Option) *store.Store[State] {
	return store.New(reduceJSON, sc.State, opts...)
}

// StepFunc is called after each step with the step's error, if any.
type StepFunc func(i int, step Step, err error)

// Run mounts the scenario on st and applies every step. A failing step is
// logged and reported to onStep; the run continues.
func (sc *Scenario) Run(st connect.Store[State], logger *slog.Logger, onStep StepFunc, opts ...connect.Option) (*Tree, error) {
	tree, err := sc.Mount(st, append([]connect.Option{connect.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}

	for i, step := range sc.Steps {
		err := tree.Apply(step)
		if err != nil {
			logger.Warn("scenario step failed",
				slog.Int("step", i+1),
				slog.String("op", step.Op),
				slog.Any("error", err))
		}
		if onStep != nil {
			onStep(i, step, err)
		}
	}
	return tree, nil
}

func describeStep(st Step) string {
	var b strings.Builder
	b.WriteString(st.Op)
	if st.Key != "" {
		b.WriteString(" " + st.Key)
	}
	if st.Consumer != "" {
		b.WriteString(" " + st.Consumer)
	}
	if st.Value != nil {
		b.WriteString(" " + compactJSON(st.Value))
	}
	return b.String()
}
