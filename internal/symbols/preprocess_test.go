package symbols

import (
	"testing"
)

func TestCleanStripsNoise(t *testing.T) {
	in := "RELIANCE to the moon 🚀 https://example.com/chart @trader_99   #breakout"
	got := Clean(in)
	if got != "RELIANCE to the moon 🚀 breakout" {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
}

func TestExtractMentionsAliases(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"hdfc bank results look strong", "HDFCBANK"},
		{"bought some infosys today", "INFY"},
		{"tata motors is on fire", "TATAMOTORS"},
		{"Airtel ka network sabse accha", "BHARTIARTL"},
		{"TCS Q3 numbers out", "TCS"},
	}
	for _, tc := range cases {
		got := ExtractMentions(tc.text)
		if len(got) == 0 || got[0] != tc.want {
			t.Errorf("ExtractMentions(%q) = %v, want first %s", tc.text, got, tc.want)
		}
	}
}

func TestExtractMentionsLongestAliasWins(t *testing.T) {
	got := ExtractMentions("hdfc bank vs hdfc life comparison")
	if len(got) < 2 {
		t.Fatalf("expected two mentions, got %v", got)
	}
	if got[0] != "HDFCBANK" || got[1] != "HDFCLIFE" {
		t.Fatalf("unexpected mentions: %v", got)
	}
}

func TestExtractMentionsWordBoundary(t *testing.T) {
	// "itcoin" must not match ITC
	if got := ExtractMentions("bitcoin is pumping"); len(got) != 0 {
		t.Fatalf("expected no mentions, got %v", got)
	}
}

func TestPrimarySymbolFallsBackToIndex(t *testing.T) {
	if got := PrimarySymbol("market looks shaky today"); got != IndexSymbol {
		t.Fatalf("expected %s, got %s", IndexSymbol, got)
	}
	if got := PrimarySymbol("wipro breakout incoming"); got != "WIPRO" {
		t.Fatalf("expected WIPRO, got %s", got)
	}
}
