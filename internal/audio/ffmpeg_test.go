package audio

import (
	"context"
	"testing"
)

func TestConvertArgs(t *testing.T) {
	args := convertArgs("/tmp/in.ogg", "/tmp/out.mp3")
	want := []string{"-i", "/tmp/in.ogg", "-f", "mp3", "-acodec", "libmp3lame", "-ac", "1", "-ar", "16000", "-y", "/tmp/out.mp3"}
	if len(args) != len(want) {
		t.Fatalf("unexpected arg count: %v", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestConvertRejectsEmptyPaths(t *testing.T) {
	if err := Convert(context.Background(), "", "/tmp/out.mp3"); err == nil {
		t.Fatal("expected error for empty src")
	}
	if err := Convert(context.Background(), "/tmp/in.ogg", "  "); err == nil {
		t.Fatal("expected error for empty dst")
	}
}
