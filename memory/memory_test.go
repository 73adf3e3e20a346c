package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func makeCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	loc := filepath.Join(root, "localisation")

	writeFile(t, filepath.Join(loc, "english", "victory_l_english.yml"),
		"\ufeffl_english:\n"+
			" VICTORY:0 \"Victory!\"\n"+
			" SHORT:0 \"A\"\n"+
			" EMPTY:0 \"\"\n"+
			" ONLY_EN:0 \"English only\"\n")
	writeFile(t, filepath.Join(loc, "korean", "victory_l_korean.yml"),
		"\ufeffl_korean:\n"+
			" VICTORY:0 \"승리!\"\n"+
			" SHORT:0 \"가\"\n"+
			" EMPTY:0 \"없음\"\n"+
			" ONLY_KO:0 \"한국어\"\n")

	// Different directory layouts pair by base name.
	writeFile(t, filepath.Join(loc, "english", "events", "news_l_english.yml"),
		"l_english:\n news.1.t:0 \"Breaking News\"\n")
	writeFile(t, filepath.Join(loc, "korean", "news_l_korean.yml"),
		"l_korean:\n news.1.t:0 \"속보\"\n")

	// Unpaired target file is ignored.
	writeFile(t, filepath.Join(loc, "korean", "orphan_l_korean.yml"),
		"l_korean:\n VICTORY:0 \"다른 값\"\n")
	return root
}

func TestBuild(t *testing.T) {
	root := makeCorpus(t)

	idx, err := Build(Options{Root: root, SourceFolder: "english", TargetFolder: "korean"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	want := map[string]string{
		"Victory!":      "승리!",
		"Breaking News": "속보",
	}
	if !reflect.DeepEqual(idx.Pairs(), want) {
		t.Fatalf("Pairs() = %v, want %v", idx.Pairs(), want)
	}
}

func TestLookupIsExact(t *testing.T) {
	idx := NewIndex(map[string]string{"Victory!": "승리!"})

	if got, ok := idx.Lookup("Victory!"); !ok || got != "승리!" {
		t.Fatalf("Lookup(Victory!) = %q, %v", got, ok)
	}
	for _, miss := range []string{"victory!", "Victory! ", "Victory"} {
		if _, ok := idx.Lookup(miss); ok {
			t.Fatalf("Lookup(%q) hit, want miss", miss)
		}
	}

	var nilIdx *Index
	if _, ok := nilIdx.Lookup("Victory!"); ok || nilIdx.Len() != 0 {
		t.Fatal("nil index should behave as empty")
	}
}

func TestBuildMinSourceLength(t *testing.T) {
	root := makeCorpus(t)
	idx, err := Build(Options{Root: root, SourceFolder: "english", TargetFolder: "korean", MinSourceLength: 1})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if got, ok := idx.Lookup("A"); !ok || got != "가" {
		t.Fatalf("Lookup(A) = %q, %v; want 가 with MinSourceLength 1", got, ok)
	}
}

func TestBuildMissingCorpus(t *testing.T) {
	_, err := Build(Options{Root: t.TempDir(), SourceFolder: "english", TargetFolder: "korean"})
	if !errors.Is(err, ErrCorpusNotFound) {
		t.Fatalf("Build() error = %v, want ErrCorpusNotFound", err)
	}
}

func TestBuildDuplicateSourcesLastWins(t *testing.T) {
	root := t.TempDir()
	loc := filepath.Join(root, "localisation")
	writeFile(t, filepath.Join(loc, "english", "a_l_english.yml"),
		"l_english:\n k1:0 \"Attack\"\n k2:0 \"Attack\"\n k3:0 \"Attack\"\n k4:0 \"Attack\"\n k5:0 \"Retreat\"\n")
	writeFile(t, filepath.Join(loc, "korean", "a_l_korean.yml"),
		"l_korean:\n k1:0 \"공격 1\"\n k2:0 \"공격 2\"\n k3:0 \"공격 3\"\n k4:0 \"공격 4\"\n k5:0 \"후퇴 a\"\n")
	writeFile(t, filepath.Join(loc, "english", "b_l_english.yml"),
		"l_english:\n r:0 \"Retreat\"\n")
	writeFile(t, filepath.Join(loc, "korean", "b_l_korean.yml"),
		"l_korean:\n r:0 \"후퇴 b\"\n")

	for range 10 {
		idx, err := Build(Options{Root: root, SourceFolder: "english", TargetFolder: "korean"})
		if err != nil {
			t.Fatalf("Build() error: %v", err)
		}
		if got, _ := idx.Lookup("Attack"); got != "공격 4" {
			t.Fatalf("Lookup(Attack) = %q, want last entry in file order", got)
		}
		if got, _ := idx.Lookup("Retreat"); got != "후퇴 b" {
			t.Fatalf("Lookup(Retreat) = %q, want value from the later file", got)
		}
	}
}

func TestBuildSuffixIgnoresCase(t *testing.T) {
	root := t.TempDir()
	loc := filepath.Join(root, "localisation")
	writeFile(t, filepath.Join(loc, "english", "Events_L_English.YML"),
		"l_english:\n win:0 \"Victory!\"\n")
	writeFile(t, filepath.Join(loc, "korean", "Events_l_korean.yml"),
		"l_korean:\n win:0 \"승리!\"\n")

	idx, err := Build(Options{Root: root, SourceFolder: "english", TargetFolder: "korean"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if got, ok := idx.Lookup("Victory!"); !ok || got != "승리!" {
		t.Fatalf("Lookup(Victory!) = %q, %v", got, ok)
	}
}

func TestBuildCached(t *testing.T) {
	root := makeCorpus(t)
	opts := Options{Root: root, SourceFolder: "english", TargetFolder: "korean"}
	ctx := context.Background()

	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache", "tm.db"))
	if err != nil {
		t.Fatalf("OpenCache() error: %v", err)
	}
	defer cache.Close()

	first, fromCache, err := BuildCached(ctx, cache, opts)
	if err != nil {
		t.Fatalf("BuildCached() error: %v", err)
	}
	if fromCache {
		t.Fatal("first BuildCached() came from cache")
	}

	second, fromCache, err := BuildCached(ctx, cache, opts)
	if err != nil {
		t.Fatalf("BuildCached() error: %v", err)
	}
	if !fromCache {
		t.Fatal("second BuildCached() was rebuilt, want cache hit")
	}
	if !reflect.DeepEqual(first.Pairs(), second.Pairs()) {
		t.Fatalf("cached pairs = %v, want %v", second.Pairs(), first.Pairs())
	}

	loc := filepath.Join(root, "localisation")
	writeFile(t, filepath.Join(loc, "english", "extra_l_english.yml"), "l_english:\n X:0 \"Extra text\"\n")
	writeFile(t, filepath.Join(loc, "korean", "extra_l_korean.yml"), "l_korean:\n X:0 \"추가\"\n")

	third, fromCache, err := BuildCached(ctx, cache, opts)
	if err != nil {
		t.Fatalf("BuildCached() error: %v", err)
	}
	if fromCache {
		t.Fatal("BuildCached() after corpus change came from cache")
	}
	if got, ok := third.Lookup("Extra text"); !ok || got != "추가" {
		t.Fatalf("Lookup(Extra text) = %q, %v", got, ok)
	}

	snaps, err := cache.Snapshots(ctx)
	if err != nil {
		t.Fatalf("Snapshots() error: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Entries != 3 || snaps[0].Target != "korean" {
		t.Fatalf("Snapshots() = %#v", snaps)
	}
}

func TestBuildCachedWithoutCache(t *testing.T) {
	root := makeCorpus(t)
	idx, fromCache, err := BuildCached(context.Background(), nil, Options{Root: root, SourceFolder: "english", TargetFolder: "korean"})
	if err != nil {
		t.Fatalf("BuildCached(nil) error: %v", err)
	}
	if fromCache || idx.Len() != 2 {
		t.Fatalf("BuildCached(nil) = %d entries, fromCache %v", idx.Len(), fromCache)
	}
}
