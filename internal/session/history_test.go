package session

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func testPolicy() Policy {
	return Policy{
		MaxAnswerChars:    20,
		RecentTurns:       2,
		RecentAnswerChars: 10,
		OlderTurns:        3,
		OlderAnswerChars:  4,
	}
}

func TestAppendTruncatesStoredAnswer(t *testing.T) {
	h := New(testPolicy())
	h.Append("q", strings.Repeat("a", 100), ModeFast)

	turn, ok := h.Last()
	if !ok {
		t.Fatal("Last returned no turn")
	}
	if len(turn.Answer) != 20 {
		t.Errorf("stored answer length = %d, want 20", len(turn.Answer))
	}
}

func TestAppendKeepsAnswerValidUTF8(t *testing.T) {
	h := New(testPolicy())
	// 18 ASCII bytes followed by a 3-byte rune: the 20-byte cap lands in
	// the middle of the curly quote.
	h.Append("q", strings.Repeat("a", 18)+"“quoted”", ModeFast)

	turn, ok := h.Last()
	if !ok {
		t.Fatal("Last returned no turn")
	}
	if !utf8.ValidString(turn.Answer) {
		t.Errorf("stored answer is not valid UTF-8: %q", turn.Answer)
	}
	if turn.Answer != strings.Repeat("a", 18) {
		t.Errorf("answer = %q, want the cut backed off to the rune boundary", turn.Answer)
	}
}

func TestRecent(t *testing.T) {
	h := New(testPolicy())
	for _, q := range []string{"q1", "q2", "q3"} {
		h.Append(q, "a", ModeFast)
	}

	got := h.Recent(2)
	if len(got) != 2 || got[0].Question != "q2" || got[1].Question != "q3" {
		t.Errorf("Recent(2) = %+v", got)
	}
	if got := h.Recent(10); len(got) != 3 {
		t.Errorf("Recent(10) returned %d turns", len(got))
	}
	if got := h.Recent(0); got != nil {
		t.Errorf("Recent(0) = %+v, want nil", got)
	}
}

func TestRecentByMode(t *testing.T) {
	h := New(testPolicy())
	h.Append("fast1", strings.Repeat("x", 20), ModeFast)
	h.Append("deep1", "deep answer", ModeDeep)
	h.Append("fast2", "short", ModeFast)
	h.Append("fast3", "short", ModeFast)

	got := h.RecentByMode(ModeFast, 2, 5)
	if len(got) != 2 {
		t.Fatalf("got %d turns, want 2", len(got))
	}
	if got[0].Question != "fast2" || got[1].Question != "fast3" {
		t.Errorf("wrong turns selected: %+v", got)
	}
	for _, turn := range got {
		if len(turn.Answer) > 5 {
			t.Errorf("answer %q not truncated to 5", turn.Answer)
		}
		if turn.Mode != ModeFast {
			t.Errorf("non-fast turn leaked: %+v", turn)
		}
	}
}

func TestTrimmedWindows(t *testing.T) {
	h := New(testPolicy())
	// 7 turns: with RecentTurns=2 and OlderTurns=3, turns 1-2 fall off,
	// 3-5 are the compressed older window, 6-7 the fuller recent window.
	for i := 1; i <= 7; i++ {
		h.Append("q"+string(rune('0'+i)), strings.Repeat("a", 15), ModeDeep)
	}

	got := h.Trimmed()
	if len(got) != 5 {
		t.Fatalf("Trimmed returned %d turns, want 5", len(got))
	}
	if got[0].Question != "q3" || got[4].Question != "q7" {
		t.Errorf("wrong window: first=%s last=%s", got[0].Question, got[4].Question)
	}
	for i := 0; i < 3; i++ {
		if len(got[i].Answer) != 4 {
			t.Errorf("older turn %d answer length = %d, want 4", i, len(got[i].Answer))
		}
	}
	for i := 3; i < 5; i++ {
		if len(got[i].Answer) != 10 {
			t.Errorf("recent turn %d answer length = %d, want 10", i, len(got[i].Answer))
		}
	}
}

func TestTrimmedShortHistory(t *testing.T) {
	h := New(testPolicy())
	h.Append("q1", "a1", ModeFast)

	got := h.Trimmed()
	if len(got) != 1 || got[0].Question != "q1" || got[0].Answer != "a1" {
		t.Errorf("Trimmed = %+v", got)
	}
}

func TestLastEmpty(t *testing.T) {
	h := New(DefaultPolicy())
	if _, ok := h.Last(); ok {
		t.Error("Last on empty history reported a turn")
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d", h.Len())
	}
}
