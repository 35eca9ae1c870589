package trigger

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/segmentio/kafka-go"
)

const s3Event = `{
  "Records": [{
    "eventName": "ObjectCreated:Put",
    "s3": {
      "bucket": {"name": "mbta-gtfs-s3"},
      "object": {"key": "alerts/Alerts+Enhanced%281%29.json", "size": 1024}
    }
  }]
}`

func TestSourceURLDecodesKey(t *testing.T) {
	ev, err := ParseEvent([]byte(s3Event))
	if err != nil {
		t.Fatalf("ParseEvent() error: %v", err)
	}
	got, err := ev.SourceURL()
	if err != nil {
		t.Fatalf("SourceURL() error: %v", err)
	}
	want := "s3://mbta-gtfs-s3/alerts/Alerts Enhanced(1).json"
	if got != want {
		t.Fatalf("SourceURL() = %q, want %q", got, want)
	}
}

func TestResolveSource(t *testing.T) {
	ev, _ := ParseEvent([]byte(s3Event))
	if got, _ := ResolveSource(ev, "s3://fallback/x.pb"); got != "s3://mbta-gtfs-s3/alerts/Alerts Enhanced(1).json" {
		t.Fatalf("ResolveSource(event) = %q", got)
	}
	if got, _ := ResolveSource(Event{}, "s3://fallback/x.pb"); got != "s3://fallback/x.pb" {
		t.Fatalf("ResolveSource(empty) = %q", got)
	}
	if _, err := ResolveSource(Event{}, ""); err == nil {
		t.Fatal("ResolveSource() without any source should fail")
	}
	bad := Event{Records: []Record{{S3: &S3Entity{}}}}
	bad.Records[0].S3.Bucket.Name = "b"
	bad.Records[0].S3.Object.Key = "%zz"
	if _, err := ResolveSource(bad, ""); err == nil {
		t.Fatal("invalid escape should fail")
	}
}

// fakeReader replays messages and records commits.
type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestConsumerCommitsAfterSuccess(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte(s3Event)},
		{Offset: 2, Value: []byte("not json")},
		{Offset: 3, Value: []byte(s3Event)},
	}}
	c := NewConsumerWithReader(r, ConsumerConfig{})

	var handled []string
	err := c.Run(context.Background(), func(_ context.Context, ev Event) error {
		src, err := ev.SourceURL()
		handled = append(handled, src)
		return err
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(handled) != 2 {
		t.Fatalf("handled = %v, want 2 events", handled)
	}
	if len(r.committed) != 3 {
		t.Fatalf("committed = %v, want all three offsets", r.committed)
	}
	if err := c.Close(); err != nil || !r.closed {
		t.Fatal("Close() should close the reader")
	}
}

func TestConsumerStopsWithoutCommitOnFailure(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 7, Value: []byte(s3Event)},
		{Offset: 8, Value: []byte(s3Event)},
	}}
	c := NewConsumerWithReader(r, ConsumerConfig{})
	boom := errors.New("provider down")
	err := c.Run(context.Background(), func(context.Context, Event) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want handler error", err)
	}
	if len(r.committed) != 0 {
		t.Fatalf("committed = %v, want none", r.committed)
	}
}

var errBadConfig = errors.New("destination is the source")

func TestConsumerCommitsPermanentFailures(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 4, Value: []byte(s3Event)},
		{Offset: 5, Value: []byte(s3Event)},
		{Offset: 6, Value: []byte(s3Event)},
	}}
	var logs []string
	c := NewConsumerWithReader(r, ConsumerConfig{
		OnLog:     func(format string, args ...any) { logs = append(logs, format) },
		Permanent: func(err error) bool { return errors.Is(err, errBadConfig) },
	})
	boom := errors.New("provider down")
	calls := 0
	err := c.Run(context.Background(), func(context.Context, Event) error {
		calls++
		if calls < 3 {
			return errBadConfig
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want transient handler error", err)
	}
	if len(r.committed) != 2 || r.committed[0] != 4 || r.committed[1] != 5 {
		t.Fatalf("committed = %v, want [4 5]", r.committed)
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %v, want one line per dropped notification", logs)
	}
}

func TestNewConsumerValidates(t *testing.T) {
	if _, err := NewConsumer(ConsumerConfig{Topic: "t"}); err == nil {
		t.Fatal("NewConsumer() without brokers should fail")
	}
}
