package service_test

import (
	"testing"

	"github.com/boddenberg/envelope-ledger/internal/service"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Trader Joe's", "trader joes"},
		{"  WHOLE   Foods\tMarket ", "whole foods market"},
		{"Joe's Café", "joes cafe"},
		{"Crème Brûlée & Co.", "creme brulee co"},
		{"Ünïcödé 123", "unicode 123"},
		{"東京 カフェ", "東京 カフェ"},
		{"Straße", "straße"},
		{"!!!", ""},
		{"   ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := service.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize_CaseAndPunctuationInsensitive(t *testing.T) {
	if service.Normalize("Joe's Café") != service.Normalize("joes cafe") {
		t.Error(`expected "Joe's Café" and "joes cafe" to share a key`)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Trader Joe's", "Joe's Café", "  a  -  b  ", "İstanbul Kebab", "ÅNGSTRÖM", "Ω ohm", "x́y", "１２３ full-width",
	}
	for _, in := range inputs {
		once := service.Normalize(in)
		if twice := service.Normalize(once); twice != once {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
