package settings

import (
	"errors"
	"testing"

	"example.com/ledgate/internal/profile"
)

func TestSaveLoad(t *testing.T) {
	in := Settings{Channel: 3, Controller: profile.LPD1886_12}
	text := in.Save()
	if text != "3 7" {
		t.Fatalf("Save = %q, want %q", text, "3 7")
	}
	out, err := Load(text)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out != in {
		t.Fatalf("Load = %+v, want %+v", out, in)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"empty", "", ErrArchiveEnd},
		{"missing controller", "2", ErrArchiveEnd},
		{"bad token", "two 1", ErrArchiveFormat},
		{"controller out of range", "0 12", profile.ErrUnknownController},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.text); !errors.Is(err, tt.want) {
				t.Fatalf("Load(%q) err = %v, want %v", tt.text, err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); !errors.Is(err, ErrNoChannel) {
		t.Fatalf("Default().Validate() = %v, want ErrNoChannel", err)
	}
	if err := (Settings{Channel: 0, Controller: profile.WS2813}).Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestArchiveStrings(t *testing.T) {
	a := NewArchive()
	a.PushString("ws2811")
	a.PushInt(-1)
	b := ParseArchive(a.String())
	s, err := b.PopString()
	if err != nil || s != "ws2811" {
		t.Fatalf("PopString = %q, %v", s, err)
	}
	v, err := b.PopInt()
	if err != nil || v != -1 {
		t.Fatalf("PopInt = %d, %v", v, err)
	}
}
