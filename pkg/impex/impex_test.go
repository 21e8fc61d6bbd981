package impex

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mnohosten/flamestore/pkg/store"
	"github.com/mnohosten/flamestore/pkg/value"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{
		"projects/demo/databases/(default)/documents/users/alice",
		"projects/demo/databases/(default)/documents/users/bob",
		"projects/demo/databases/(default)/documents/users/alice/posts/p1",
	} {
		s.Put(&store.Document{
			Name: name,
			Fields: map[string]*value.Value{
				"n": value.Integer(int64(i)),
				"nested": value.MapVal(map[string]*value.Value{
					"at": value.Timestamp(base),
				}),
			},
			CreateTime: base,
			UpdateTime: base.Add(time.Duration(i) * time.Second),
		})
	}
	return s
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecGzip, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			src := seedStore(t)

			var buf bytes.Buffer
			n, err := Export(&buf, src, codec)
			if err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			if n != 3 {
				t.Errorf("Expected 3 documents exported, got %d", n)
			}

			dst := store.New()
			n, err = Import(&buf, dst, codec)
			if err != nil {
				t.Fatalf("Import failed: %v", err)
			}
			if n != 3 {
				t.Errorf("Expected 3 documents imported, got %d", n)
			}

			alice, ok := dst.Get("projects/demo/databases/(default)/documents/users/alice")
			if !ok {
				t.Fatal("Expected alice to survive the round trip")
			}
			if alice.Fields["n"].Int != 0 {
				t.Errorf("Expected n=0, got %d", alice.Fields["n"].Int)
			}
			at := alice.Fields["nested"].Map["at"]
			if at.Type != value.TypeTimestamp {
				t.Errorf("Expected timestamp to survive, got %s", at.Type)
			}
			if dst.Len() != src.Len() {
				t.Errorf("Expected %d documents, got %d", src.Len(), dst.Len())
			}
		})
	}
}

func TestExportIsSortedJSONL(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Export(&buf, seedStore(t), CodecNone); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(lines))
	}
	// Lexicographic name order: alice, alice/posts/p1, bob.
	if !strings.Contains(lines[0], "users/alice\"") {
		t.Errorf("Expected alice first, got %s", lines[0])
	}
	if !strings.Contains(lines[2], "users/bob") {
		t.Errorf("Expected bob last, got %s", lines[2])
	}
}

func TestImportRejectsBadRecords(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"bad name", `{"name":"not/a/document","createTime":"2024-03-01T12:00:00Z","updateTime":"2024-03-01T12:00:00Z"}`},
		{"bad time", `{"name":"projects/p/databases/(default)/documents/c/d","createTime":"yesterday","updateTime":"2024-03-01T12:00:00Z"}`},
		{"not json", `{{{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := store.New()
			if _, err := Import(strings.NewReader(tc.input), s, CodecNone); err == nil {
				t.Error("Expected import to fail")
			}
			if s.Len() != 0 {
				t.Errorf("Expected no documents, got %d", s.Len())
			}
		})
	}
}

func TestParseCodec(t *testing.T) {
	for name, want := range map[string]Codec{
		"":     CodecNone,
		"none": CodecNone,
		"gzip": CodecGzip,
		"zstd": CodecZstd,
	} {
		got, err := ParseCodec(name)
		if err != nil {
			t.Fatalf("ParseCodec(%q) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("ParseCodec(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseCodec("brotli"); err == nil {
		t.Error("Expected unknown codec to fail")
	}
}
