// Package pgn reads the tag pairs and mainline moves of a game in
// Portable Game Notation. It does not validate move legality.
package pgn

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// ErrMalformed is returned for text that is not a readable game.
var ErrMalformed = errors.New("malformed notation")

var (
	sanPattern        = regexp.MustCompile(`^(?:[KQRBN][a-h]?[1-8]?x?[a-h][1-8]|[a-h](?:x[a-h])?[1-8](?:=?[QRBN])?|O-O(?:-O)?|0-0(?:-0)?)[+#]?[!?]{0,2}$`)
	moveNumberPattern = regexp.MustCompile(`^[0-9]+\.+`)
)

var terminationMarkers = map[string]bool{
	"1-0":     true,
	"0-1":     true,
	"1/2-1/2": true,
	"*":       true,
}

// Game is the first game found in a notation text.
type Game struct {
	Tags   map[string]string
	Moves  []string
	Result string
}

// Tag returns the value of a tag pair, or "" when absent.
func (g *Game) Tag(name string) string {
	return g.Tags[name]
}

// HalfMoves is the number of mainline plies.
func (g *Game) HalfMoves() int {
	return len(g.Moves)
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() byte { return s.src[s.pos] }

func (s *scanner) skipSpace() {
	for !s.eof() && unicode.IsSpace(rune(s.peek())) {
		s.pos++
	}
}

// Parse reads the first game of text.
func Parse(text string) (*Game, error) {
	s := &scanner{src: strings.TrimPrefix(text, "\ufeff")}
	g := &Game{Tags: make(map[string]string)}

	if err := s.readTags(g); err != nil {
		return nil, err
	}
	if err := s.readMovetext(g); err != nil {
		return nil, err
	}
	if len(g.Tags) == 0 && len(g.Moves) == 0 {
		return nil, errors.Wrap(ErrMalformed, "no tags or moves")
	}
	return g, nil
}

func (s *scanner) readTags(g *Game) error {
	for {
		s.skipSpace()
		if s.eof() {
			return nil
		}
		switch s.peek() {
		case '%':
			s.skipLine()
			continue
		case '[':
		default:
			return nil
		}
		s.pos++
		s.skipSpace()
		start := s.pos
		for !s.eof() && (isSymbolChar(s.peek())) {
			s.pos++
		}
		name := s.src[start:s.pos]
		if name == "" {
			return errors.Wrapf(ErrMalformed, "tag without name at offset %d", start)
		}
		s.skipSpace()
		if s.eof() || s.peek() != '"' {
			return errors.Wrapf(ErrMalformed, "tag %s has no value", name)
		}
		s.pos++
		value, err := s.readString()
		if err != nil {
			return errors.Wrapf(err, "tag %s", name)
		}
		s.skipSpace()
		if s.eof() || s.peek() != ']' {
			return errors.Wrapf(ErrMalformed, "tag %s is not closed", name)
		}
		s.pos++
		g.Tags[name] = value
	}
}

func (s *scanner) readString() (string, error) {
	var b strings.Builder
	for !s.eof() {
		c := s.peek()
		s.pos++
		switch c {
		case '\\':
			if s.eof() {
				return "", errors.Wrap(ErrMalformed, "dangling escape")
			}
			b.WriteByte(s.peek())
			s.pos++
		case '"':
			return b.String(), nil
		case '\n':
			return "", errors.Wrap(ErrMalformed, "unterminated string")
		default:
			b.WriteByte(c)
		}
	}
	return "", errors.Wrap(ErrMalformed, "unterminated string")
}

func (s *scanner) skipLine() {
	for !s.eof() && s.peek() != '\n' {
		s.pos++
	}
}

func (s *scanner) readMovetext(g *Game) error {
	depth := 0
	for {
		s.skipSpace()
		if s.eof() {
			break
		}
		c := s.peek()
		switch {
		case c == '{':
			end := strings.IndexByte(s.src[s.pos:], '}')
			if end < 0 {
				return errors.Wrap(ErrMalformed, "unterminated comment")
			}
			s.pos += end + 1
		case c == ';':
			s.skipLine()
		case c == '(':
			depth++
			s.pos++
		case c == ')':
			depth--
			if depth < 0 {
				return errors.Wrap(ErrMalformed, "unbalanced variation")
			}
			s.pos++
		case c == '$':
			s.pos++
			for !s.eof() && s.peek() >= '0' && s.peek() <= '9' {
				s.pos++
			}
		case c == '[' && depth == 0:
			// next game
			return nil
		default:
			tok := s.readToken()
			if tok == "" {
				return errors.Wrapf(ErrMalformed, "unexpected character %q", c)
			}
			if terminationMarkers[tok] {
				if depth == 0 {
					g.Result = tok
					return nil
				}
				continue
			}
			tok = moveNumberPattern.ReplaceAllString(tok, "")
			if tok == "" || depth > 0 {
				continue
			}
			if !sanPattern.MatchString(tok) {
				return errors.Wrapf(ErrMalformed, "bad move %q", tok)
			}
			g.Moves = append(g.Moves, tok)
		}
	}
	if depth != 0 {
		return errors.Wrap(ErrMalformed, "unbalanced variation")
	}
	return nil
}

func (s *scanner) readToken() string {
	start := s.pos
	for !s.eof() {
		c := s.peek()
		if unicode.IsSpace(rune(c)) || strings.IndexByte("{}();[$", c) >= 0 {
			break
		}
		s.pos++
	}
	return s.src[start:s.pos]
}

func isSymbolChar(c byte) bool {
	return c == '_' || c == '+' || c == '#' || c == '=' || c == ':' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
