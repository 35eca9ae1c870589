// Package feed reads and writes GTFS-realtime alert feeds in their binary
// protobuf and JSON wire forms.
//
// A parsed feed is a Document: the structured FeedMessage plus, for the
// JSON form, the raw JSON tree it was decoded from. Producers add fields to
// the JSON form that the protobuf schema does not know about (for example
// service_effect_text). Those survive only through the raw tree, which is
// merged back into the serialized output with a fill-only rule.
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Format is a feed wire form.
type Format string

const (
	FormatPB   Format = "pb"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat is returned for a Format other than pb or json.
var ErrUnsupportedFormat = errors.New("unsupported feed format")

// ContentType returns the MIME type written alongside a serialized feed.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "application/x-protobuf"
}

// FormatFromLocation picks the wire form from a location's extension:
// ".json" selects JSON, anything else selects protobuf. Query strings and
// fragments of URLs are ignored.
func FormatFromLocation(location string) Format {
	path := location
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		path = u.Path
	}
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return FormatJSON
	}
	return FormatPB
}

// Document is a parsed feed: the structured message and, for JSON input,
// the raw tree used as the enhanced-field overlay.
type Document struct {
	Message *gtfs.FeedMessage
	Overlay map[string]any
}

// Timestamp returns the header timestamp, or 0 when absent.
func (d *Document) Timestamp() uint64 {
	if d == nil || d.Message == nil {
		return 0
	}
	return d.Message.GetHeader().GetTimestamp()
}

// AlertCount returns the number of entities that carry an alert.
func (d *Document) AlertCount() int {
	if d == nil || d.Message == nil {
		return 0
	}
	n := 0
	for _, e := range d.Message.GetEntity() {
		if e.GetAlert() != nil {
			n++
		}
	}
	return n
}

var (
	unmarshalJSON = protojson.UnmarshalOptions{DiscardUnknown: true, AllowPartial: true}
	marshalJSON   = protojson.MarshalOptions{UseProtoNames: true, AllowPartial: true}
	unmarshalPB   = proto.UnmarshalOptions{AllowPartial: true}
	marshalPB     = proto.MarshalOptions{AllowPartial: true}
)

// Parse decodes a feed. JSON input tolerates field names unknown to the
// schema and keeps the raw tree as the document overlay.
func Parse(data []byte, format Format) (*Document, error) {
	msg := &gtfs.FeedMessage{}
	switch format {
	case FormatPB:
		if err := unmarshalPB.Unmarshal(data, msg); err != nil {
			return nil, fmt.Errorf("decoding protobuf feed: %w", err)
		}
		return &Document{Message: msg}, nil
	case FormatJSON:
		if err := unmarshalJSON.Unmarshal(data, msg); err != nil {
			return nil, fmt.Errorf("decoding JSON feed: %w", err)
		}
		tree, err := decodeTree(data)
		if err != nil {
			return nil, fmt.Errorf("decoding JSON feed tree: %w", err)
		}
		return &Document{Message: msg, Overlay: tree}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Serialize encodes a feed. For JSON, the document overlay (if any) is
// merged into the tree derived from the structured message before writing.
func Serialize(doc *Document, format Format) ([]byte, error) {
	if doc == nil || doc.Message == nil {
		return nil, errors.New("serializing feed: nil document")
	}
	switch format {
	case FormatPB:
		data, err := marshalPB.Marshal(doc.Message)
		if err != nil {
			return nil, fmt.Errorf("encoding protobuf feed: %w", err)
		}
		return data, nil
	case FormatJSON:
		raw, err := marshalJSON.Marshal(doc.Message)
		if err != nil {
			return nil, fmt.Errorf("encoding JSON feed: %w", err)
		}
		derived, err := decodeTree(raw)
		if err != nil {
			return nil, fmt.Errorf("re-reading JSON feed: %w", err)
		}
		if doc.Overlay != nil {
			MergeOverlay(derived, doc.Overlay)
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(derived); err != nil {
			return nil, fmt.Errorf("writing JSON feed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// decodeTree decodes a JSON object keeping numbers as json.Number so that
// large integers round-trip without float conversion.
func decodeTree(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}
