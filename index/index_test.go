package index

import (
	"reflect"
	"testing"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/feed"
)

func ts(pairs ...string) *gtfs.TranslatedString {
	out := &gtfs.TranslatedString{}
	for i := 0; i+1 < len(pairs); i += 2 {
		tr := &gtfs.TranslatedString_Translation{Text: proto.String(pairs[i+1])}
		if pairs[i] != "-" {
			tr.Language = proto.String(pairs[i])
		}
		out.Translation = append(out.Translation, tr)
	}
	return out
}

func doc(alerts ...*gtfs.Alert) *feed.Document {
	msg := &gtfs.FeedMessage{Header: &gtfs.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")}}
	for i, a := range alerts {
		msg.Entity = append(msg.Entity, &gtfs.FeedEntity{Id: proto.String(string(rune('a' + i))), Alert: a})
	}
	return &feed.Document{Message: msg}
}

func TestExtractEnglish(t *testing.T) {
	d := doc(
		&gtfs.Alert{
			HeaderText:      ts("en", "Delays"),
			DescriptionText: ts("-", "Untagged source"),
			TtsHeaderText:   ts("es", "Sin inglés"),
			Url:             ts("en", "http://x.com"),
		},
		&gtfs.Alert{HeaderText: ts("en", "Delays"), TtsDescriptionText: ts("en", " ")},
		nil,
	)
	got := ExtractEnglish(d)
	want := []string{"Delays", "Untagged source", " "}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractEnglish() = %q, want %q", got, want)
	}
}

func TestExtractTranslationsCanonicalizesAndFirstWins(t *testing.T) {
	d := doc(
		&gtfs.Alert{HeaderText: ts("en", "Delays", "es-LA", "Retrasos", "fr", "Retards")},
		&gtfs.Alert{HeaderText: ts("en", "Delays", "es-419", "Demoras")},
		&gtfs.Alert{DescriptionText: ts("es", "Huérfano")},
	)
	m := ExtractTranslations(d)
	if got := m["Delays"]["es-419"]; got != "Retrasos" {
		t.Fatalf("es-419 = %q, want %q", got, "Retrasos")
	}
	if _, ok := m["Delays"]["es-LA"]; ok {
		t.Fatal("legacy tag leaked into the map")
	}
	if got := m["Delays"]["fr"]; got != "Retards" {
		t.Fatalf("fr = %q, want %q", got, "Retards")
	}
	if len(m) != 1 {
		t.Fatalf("fields without English must be skipped, got %v", m)
	}
}

func TestOverlayFields(t *testing.T) {
	d := doc(&gtfs.Alert{HeaderText: ts("en", "Header")})
	d.Overlay = map[string]any{
		"entity": []any{map[string]any{
			"id": "a",
			"alert": map[string]any{
				"service_effect_text": map[string]any{"translation": []any{
					map[string]any{"text": "Bus detour", "language": "en"},
					map[string]any{"text": "Desvío", "language": "es-LA"},
				}},
				"timeframe_text": map[string]any{"translation": []any{
					map[string]any{"text": "this weekend"},
				}},
			},
		}},
	}

	got := ExtractEnglish(d)
	want := []string{"Header", "Bus detour", "this weekend"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractEnglish() = %q, want %q", got, want)
	}
	if got := ExtractTranslations(d)["Bus detour"]["es-419"]; got != "Desvío" {
		t.Fatalf("overlay translation = %q, want %q", got, "Desvío")
	}

	fields := Fields(d)
	tf := fields[2]
	if tf.Has("es") {
		t.Fatal("timeframe_text has no es entry yet")
	}
	tf.Add("es", "este fin de semana")
	if !tf.Has("es") {
		t.Fatal("Add must write through to the overlay")
	}
	alert := feed.Entities(d.Overlay)[0]["alert"].(map[string]any)
	list := alert["timeframe_text"].(map[string]any)["translation"].([]any)
	if len(list) != 2 {
		t.Fatalf("overlay translation list = %v", list)
	}
}

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		name string
		in   *gtfs.TranslatedString
		want []string
	}{
		{name: "rename legacy", in: ts("en", "x", "es-LA", "y"), want: []string{"", "es-419"}},
		{name: "drop duplicate legacy", in: ts("en", "x", "es-LA", "y", "es-419", "z"), want: []string{"", "es-419"}},
		{name: "untouched", in: ts("en", "x", "es", "y"), want: []string{"", "es"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &protoField{ts: tc.in}
			f.Canonicalize()
			var got []string
			for _, tr := range tc.in.Translation {
				lang := tr.GetLanguage()
				if lang == "en" {
					lang = ""
				}
				got = append(got, lang)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("languages = %q, want %q", got, tc.want)
			}
		})
	}

	jf := &jsonField{m: map[string]any{"translation": []any{
		map[string]any{"text": "x", "language": "en"},
		map[string]any{"text": "y", "language": "es-LA"},
	}}}
	jf.Canonicalize()
	if !jf.Has("es-419") || jf.Has("es-LA") {
		t.Fatalf("overlay canonicalize = %v", jf.m)
	}
}

func TestURLFieldsExcludedFromProse(t *testing.T) {
	d := doc(&gtfs.Alert{Url: ts("en", "http://x.com")})
	if got := len(Fields(d)); got != 0 {
		t.Fatalf("Fields() = %d, want 0", got)
	}
	if got := len(URLFields(d)); got != 1 {
		t.Fatalf("URLFields() = %d, want 1", got)
	}
}
