// Package command разбирает строки чата в команды бота.
//
// Разбор не падает и не имеет побочных эффектов: любая строка с маркером
// превращается ровно в одну Command (неизвестный глагол → Unknown). Аргументы
// (например, пустой запрос у !play) проверяет диспетчер, а не парсер.
package command

import (
	"strings"
	"unicode"
)

// DefaultMarker: символ, с которого начинается команда в чате.
const DefaultMarker = '!'

type Verb int

const (
	Unknown Verb = iota
	Play
	Stop
	URL
	NowPlaying
	Status
	Help
	Queue
	Search
)

var verbs = map[string]Verb{
	"play":   Play,
	"stop":   Stop,
	"url":    URL,
	"np":     NowPlaying,
	"status": Status,
	"help":   Help,
	"queue":  Queue,
	"search": Search,
}

func (v Verb) String() string {
	switch v {
	case Play:
		return "play"
	case Stop:
		return "stop"
	case URL:
		return "url"
	case NowPlaying:
		return "np"
	case Status:
		return "status"
	case Help:
		return "help"
	case Queue:
		return "queue"
	case Search:
		return "search"
	default:
		return "unknown"
	}
}

// Command: результат разбора. Arg содержит запрос для Play и Search (может быть пустым),
// Raw содержит исходную строку без пробелов по краям.
type Command struct {
	Verb Verb
	Arg  string
	Raw  string
}

// Query возвращает поисковый запрос команд Play и Search.
func (c Command) Query() string { return c.Arg }

type Parser struct {
	marker byte
}

// NewParser создаёт парсер с заданным маркером (например '!' или '/').
func NewParser(marker byte) Parser {
	if marker == 0 {
		marker = DefaultMarker
	}
	return Parser{marker: marker}
}

func (p Parser) Marker() byte { return p.marker }

// IsCommand сообщает, адресована ли строка боту. Строки без маркера
// в Parse не передаются вовсе.
func (p Parser) IsCommand(raw string) bool {
	s := strings.TrimSpace(raw)
	return len(s) > 0 && s[0] == p.marker
}

func (p Parser) Parse(raw string) Command {
	s := strings.TrimSpace(raw)
	cmd := Command{Verb: Unknown, Raw: s}
	if len(s) == 0 || s[0] != p.marker {
		return cmd
	}

	body := s[1:]
	name, rest := body, ""
	if i := strings.IndexFunc(body, unicode.IsSpace); i >= 0 {
		name, rest = body[:i], strings.TrimSpace(body[i:])
	}

	v, ok := verbs[strings.ToLower(name)]
	if !ok {
		return cmd
	}
	cmd.Verb = v
	cmd.Arg = rest
	return cmd
}

var defaultParser = NewParser(DefaultMarker)

// Parse разбирает строку с маркером по умолчанию.
func Parse(raw string) Command { return defaultParser.Parse(raw) }

// IsCommand проверяет строку на маркер по умолчанию.
func IsCommand(raw string) bool { return defaultParser.IsCommand(raw) }
