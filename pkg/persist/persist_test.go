package persist

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	cerrors "github.com/vango-dev/connect/internal/errors"
	"github.com/vango-dev/connect/pkg/store"
)

type state struct {
	Count int    `json:"count"`
	Name  string `json:"name"`
}

func reducer(s state, a store.Action) (state, error) {
	switch a.Type {
	case "inc":
		s.Count++
	case "rename":
		s.Name = a.Payload.(string)
	}
	return s, nil
}

// fakeS3 keeps objects in memory.
type fakeS3 struct {
	objects map[string][]byte
	putErr  error
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts++
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestFileSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(filepath.Join(dir, "snaps"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := sink.Load(ctx, "state.json"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
	if err := sink.Save(ctx, "nested/state.json", []byte(`{"count":1}`)); err != nil {
		t.Fatal(err)
	}
	data, err := sink.Load(ctx, "nested/state.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"count":1}` {
		t.Errorf("data = %s", data)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "snaps", "nested"))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFileSinkRejectsEscapingKeys(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "../x", "/etc/passwd", ".."} {
		if err := sink.Save(context.Background(), key, nil); err == nil {
			t.Errorf("Save(%q) should fail", key)
		}
	}
}

func TestS3SinkRoundTrip(t *testing.T) {
	fake := newFakeS3()
	sink := NewS3Sink(fake, "bucket", "snaps/")
	ctx := context.Background()

	if _, err := sink.Load(ctx, "state.json"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
	if err := sink.Save(ctx, "state.json", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.objects["bucket/snaps/state.json"]; !ok {
		t.Errorf("objects = %v", fake.objects)
	}
	data, err := sink.Load(ctx, "state.json")
	if err != nil || string(data) != `{}` {
		t.Errorf("Load = %s, %v", data, err)
	}
}

func TestPersisterSavesOnlyOnChange(t *testing.T) {
	fake := newFakeS3()
	st := store.New(reducer, state{Name: "a"})
	p := NewPersister[state](st, NewS3Sink(fake, "b", ""), "state.json")
	defer p.Close()

	st.Dispatch("noop")
	if p.Saves() != 0 {
		t.Errorf("unchanged state saved: saves = %d", p.Saves())
	}

	st.Dispatch("inc")
	st.Dispatch("noop")
	st.Dispatch(store.Action{Type: "rename", Payload: "b"})
	if p.Saves() != 2 {
		t.Errorf("saves = %d, want 2", p.Saves())
	}

	got, err := Restore[state](context.Background(), NewS3Sink(fake, "b", ""), "state.json")
	if err != nil {
		t.Fatal(err)
	}
	if got != (state{Count: 1, Name: "b"}) {
		t.Errorf("restored = %+v", got)
	}
}

func TestPersisterKeepsSaveErrors(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")
	st := store.New(reducer, state{})
	p := NewPersister[state](st, NewS3Sink(fake, "b", ""), "state.json")

	if err := st.Dispatch("inc"); err != nil {
		t.Fatalf("save error leaked into dispatch: %v", err)
	}
	if !cerrors.Is(p.LastError(), "P001") {
		t.Errorf("LastError = %v, want P001", p.LastError())
	}

	// A failed save is retried on the next notification.
	fake.putErr = nil
	st.Dispatch("noop")
	if p.LastError() != nil || p.Saves() != 1 {
		t.Errorf("after retry: err = %v saves = %d", p.LastError(), p.Saves())
	}

	p.Close()
	p.Close()
	st.Dispatch("inc")
	if fake.puts != 2 {
		t.Errorf("puts = %d after Close, want 2", fake.puts)
	}
}

func TestPersisterFlush(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	st := store.New(reducer, state{Count: 7})
	p := NewPersister[state](st, sink, "s.json")
	defer p.Close()

	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	got, err := Restore[state](context.Background(), sink, "s.json")
	if err != nil || got.Count != 7 {
		t.Errorf("restored = %+v, %v", got, err)
	}
}

func TestRestoreErrors(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_, err = Restore[state](ctx, sink, "missing.json")
	if !errors.Is(err, ErrSnapshotNotFound) || !cerrors.Is(err, "P002") {
		t.Errorf("missing: %v", err)
	}

	sink.Save(ctx, "bad.json", []byte(`{"count":"x"}`))
	_, err = Restore[state](ctx, sink, "bad.json")
	if !cerrors.Is(err, "P003") {
		t.Errorf("bad: %v", err)
	}
}
