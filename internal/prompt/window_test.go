package prompt

import (
	"strings"
	"testing"

	"github.com/ashureev/charcord/internal/domain"
)

func makeHistory(n, charsEach int) []domain.HistoryEntry {
	history := make([]domain.HistoryEntry, 0, n)
	for i := 0; i < n; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		history = append(history, domain.HistoryEntry{
			Role:    role,
			Content: strings.Repeat("x", charsEach),
		})
	}
	return history
}

func windowTokens(window []Message, charsPerToken float64) int {
	var total int
	for _, m := range window {
		total += ApproxTokens(m.Content, charsPerToken)
	}
	return total
}

func TestBuildWindowIncludesEverythingUnderBudget(t *testing.T) {
	t.Parallel()

	system := strings.Repeat("s", 2000) // ~500 tokens at 4 chars/token
	history := makeHistory(50, 160)     // ~40 tokens each, ~2000 total

	window := BuildWindow(system, "Luna", "", history, 3600, CharsPerTokenChat, ModeStandard)

	if len(window) != 51 {
		t.Fatalf("window length = %d, want 51 (system + 50 turns)", len(window))
	}
	if window[0].Role != domain.RoleSystem {
		t.Errorf("first message role = %q, want system", window[0].Role)
	}
	if got := windowTokens(window, CharsPerTokenChat); got > 3600 {
		t.Errorf("window cost = %d tokens, exceeds budget", got)
	}
}

func TestBuildWindowDropsOldestWhenOverBudget(t *testing.T) {
	t.Parallel()

	system := strings.Repeat("s", 2000)
	history := makeHistory(50, 160)
	// One huge newest turn forces the oldest turns out.
	history = append(history, domain.HistoryEntry{
		Role:    domain.RoleUser,
		Content: strings.Repeat("y", 8000), // ~2000 tokens
	})

	window := BuildWindow(system, "Luna", "", history, 3600, CharsPerTokenChat, ModeStandard)

	if got := windowTokens(window, CharsPerTokenChat); got > 3600 {
		t.Fatalf("window cost = %d tokens, exceeds budget", got)
	}
	last := window[len(window)-1]
	if !strings.HasPrefix(last.Content, "y") {
		t.Error("expected the newest turn to survive the walk")
	}
	if len(window) >= 52 {
		t.Errorf("window length = %d, expected older turns to be dropped", len(window))
	}
}

func TestBuildWindowNeverExceedsBudget(t *testing.T) {
	t.Parallel()

	budgets := []int{200, 500, 1000, 2500}
	history := makeHistory(40, 300)

	for _, budget := range budgets {
		window := BuildWindow("be helpful", "Luna", "a cat", history, budget, CharsPerTokenCompletion, ModeStandard)
		if got := windowTokens(window, CharsPerTokenCompletion); got > budget && len(window) > 1 {
			t.Errorf("budget %d: window cost = %d", budget, got)
		}
	}
}

func TestBuildWindowRegenerateDropsTrailingAssistant(t *testing.T) {
	t.Parallel()

	history := []domain.HistoryEntry{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello!"},
	}

	window := BuildWindow("sys", "Luna", "", history, 1000, CharsPerTokenChat, ModeRegenerate)

	if len(window) != 2 {
		t.Fatalf("window length = %d, want 2", len(window))
	}
	if window[1].Role != domain.RoleUser || window[1].Content != "hi" {
		t.Errorf("last message = %+v, want the user turn", window[1])
	}
}

func TestBuildWindowContinueAppendsInstruction(t *testing.T) {
	t.Parallel()

	history := []domain.HistoryEntry{
		{Role: domain.RoleUser, Content: "tell me a story"},
		{Role: domain.RoleAssistant, Content: "once upon a time"},
	}

	window := BuildWindow("sys", "Luna", "", history, 1000, CharsPerTokenChat, ModeContinue)

	last := window[len(window)-1]
	if last.Content != ContinueInstruction {
		t.Errorf("last message = %q, want continuation instruction", last.Content)
	}
}

func TestBuildWindowSystemMessageCombinesPromptAndDefinition(t *testing.T) {
	t.Parallel()

	window := BuildWindow("You are {{char}}.", "Luna", "Luna is a moon spirit.", nil, 1000, CharsPerTokenChat, ModeStandard)

	if len(window) != 1 {
		t.Fatalf("window length = %d, want 1", len(window))
	}
	system := window[0].Content
	if !strings.Contains(system, "You are Luna.") {
		t.Errorf("system prompt missing name substitution: %q", system)
	}
	if !strings.Contains(system, "Luna is a moon spirit.") {
		t.Errorf("system prompt missing definition: %q", system)
	}
}

func TestFlattenEndsWithCharacterCue(t *testing.T) {
	t.Parallel()

	window := []Message{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hey"},
	}

	flat := Flatten(window, "Luna")

	if !strings.HasSuffix(flat, "Luna:") {
		t.Errorf("flattened prompt should end with the character cue: %q", flat)
	}
	if !strings.Contains(flat, "You: hi") {
		t.Errorf("flattened prompt missing user line: %q", flat)
	}
	if !strings.Contains(flat, "Luna: hey") {
		t.Errorf("flattened prompt missing assistant line: %q", flat)
	}
}
