package backend

import (
	"os"
	"path/filepath"
	"testing"
)

func writeVocab(t *testing.T, tokens []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.txt")
	content := ""
	for _, tok := range tokens {
		content += tok + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
	return path
}

func TestWordPieceEncode(t *testing.T) {
	path := writeVocab(t, []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "hello", "world", "un", "##safe"})
	tok, err := loadWordPieceTokenizer(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ids, attn := tok.Encode("Hello unsafe world", 10)
	if len(ids) != 10 || len(attn) != 10 {
		t.Fatalf("expected length 10, got %d/%d", len(ids), len(attn))
	}

	// [CLS] hello un ##safe world [SEP] then padding.
	want := []int64{2, 4, 6, 7, 5, 3, 0, 0, 0, 0}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("ids[%d] = %d, want %d (full: %v)", i, ids[i], id, ids)
		}
	}
	for i := 0; i < 6; i++ {
		if attn[i] != 1 {
			t.Fatalf("attn[%d] = %d, want 1", i, attn[i])
		}
	}
	for i := 6; i < 10; i++ {
		if attn[i] != 0 {
			t.Fatalf("attn[%d] = %d, want 0", i, attn[i])
		}
	}
}

func TestWordPieceUnknownToken(t *testing.T) {
	path := writeVocab(t, []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "hello"})
	tok, err := loadWordPieceTokenizer(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ids, _ := tok.Encode("zzzzz", 5)
	if ids[1] != 1 {
		t.Fatalf("expected [UNK] id 1, got %d", ids[1])
	}
}

func TestWordPieceTruncates(t *testing.T) {
	path := writeVocab(t, []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "a"})
	tok, err := loadWordPieceTokenizer(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ids, attn := tok.Encode("a a a a a a a a a a", 4)
	if len(ids) != 4 || len(attn) != 4 {
		t.Fatalf("expected length 4, got %d/%d", len(ids), len(attn))
	}
}
