// Package settings holds the per-run analyzer settings and their persisted
// text form.
package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"example.com/ledgate/internal/profile"
)

// NoChannel marks a settings record whose input has not been chosen.
const NoChannel = -1

var (
	ErrNoChannel     = errors.New("settings: no input channel selected")
	ErrArchiveEnd    = errors.New("settings: archive ended early")
	ErrArchiveFormat = errors.New("settings: malformed archive token")
)

// Settings is read-only for the duration of a decode.
type Settings struct {
	Channel    int                `json:"channel" yaml:"channel"`
	Controller profile.Controller `json:"controller" yaml:"controller"`
}

func Default() Settings {
	return Settings{Channel: NoChannel, Controller: profile.WS2811}
}

func (s Settings) Validate() error {
	if s.Channel < 0 {
		return ErrNoChannel
	}
	if !s.Controller.Valid() {
		return fmt.Errorf("%w: %d", profile.ErrUnknownController, int(s.Controller))
	}
	return nil
}

func (s Settings) Profile() profile.Profile {
	return profile.Get(s.Controller)
}

// Save serializes the settings as an archive: channel id, then controller.
func (s Settings) Save() string {
	a := NewArchive()
	a.PushInt(int64(s.Channel))
	a.PushInt(int64(s.Controller))
	return a.String()
}

// Load restores settings written by Save and validates the controller.
func Load(text string) (Settings, error) {
	a := ParseArchive(text)
	ch, err := a.PopInt()
	if err != nil {
		return Settings{}, fmt.Errorf("channel: %w", err)
	}
	ctrl, err := a.PopInt()
	if err != nil {
		return Settings{}, fmt.Errorf("controller: %w", err)
	}
	c := profile.Controller(ctrl)
	if !c.Valid() {
		return Settings{}, fmt.Errorf("%w: %d", profile.ErrUnknownController, ctrl)
	}
	return Settings{Channel: int(ch), Controller: c}, nil
}

// Archive is an ordered sequence of whitespace separated tokens. Values are
// read back in the order they were pushed.
type Archive struct {
	tokens []string
	pos    int
}

func NewArchive() *Archive {
	return &Archive{}
}

func ParseArchive(text string) *Archive {
	return &Archive{tokens: strings.Fields(text)}
}

func (a *Archive) PushInt(v int64) {
	a.tokens = append(a.tokens, strconv.FormatInt(v, 10))
}

func (a *Archive) PushString(s string) {
	a.tokens = append(a.tokens, strconv.Quote(s))
}

func (a *Archive) next() (string, error) {
	if a.pos >= len(a.tokens) {
		return "", ErrArchiveEnd
	}
	tok := a.tokens[a.pos]
	a.pos++
	return tok, nil
}

func (a *Archive) PopInt() (int64, error) {
	tok, err := a.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrArchiveFormat, tok)
	}
	return v, nil
}

// PopString reads a token written by PushString. Strings containing
// whitespace are not supported.
func (a *Archive) PopString() (string, error) {
	tok, err := a.next()
	if err != nil {
		return "", err
	}
	s, err := strconv.Unquote(tok)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrArchiveFormat, tok)
	}
	return s, nil
}

func (a *Archive) String() string {
	return strings.Join(a.tokens, " ")
}
