package conversation

import (
	"strings"
	"testing"
)

func TestChunkMessageShortTextIsUntouched(t *testing.T) {
	t.Parallel()

	chunks := chunkMessage("hello", 2000, 3, " [...]")
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestChunkMessageSplitsAtWhitespace(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("word ", 900) // ~4500 chars
	chunks := chunkMessage(text, 2000, 3, " [...]")

	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want at least 2", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 2000 {
			t.Errorf("chunk %d length = %d, exceeds limit", i, len(chunk))
		}
	}
}

func TestChunkMessageTruncatesPastMaxParts(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 10000)
	chunks := chunkMessage(text, 2000, 3, " [...]")

	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(last, " [...]") {
		t.Errorf("last chunk missing truncation suffix: %q", last[len(last)-20:])
	}
	if len(last) > 2000 {
		t.Errorf("last chunk length = %d, exceeds limit", len(last))
	}
}

func TestChunkMessageNeverSplitsRunes(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("é", 3000) // two bytes per rune, no whitespace
	chunks := chunkMessage(text, 2000, 4, " [...]")

	for i, chunk := range chunks {
		if !strings.HasPrefix(chunk, "é") && !strings.HasPrefix(chunk, " ") {
			t.Errorf("chunk %d starts mid-rune: %q", i, chunk[:4])
		}
		if len(chunk) > 2000 {
			t.Errorf("chunk %d length = %d, exceeds limit", i, len(chunk))
		}
	}
}
