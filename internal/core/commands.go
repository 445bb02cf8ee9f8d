package core

import "strings"

// Canonical command names.
const (
	CmdPlay        = "play"
	CmdPlayNext    = "playnext"
	CmdQueue       = "queue"
	CmdSkip        = "skip"
	CmdShuffle     = "shuffle"
	CmdNowPlaying  = "nowplaying"
	CmdJoin        = "join"
	CmdPause       = "pause"
	CmdResume      = "resume"
	CmdMove        = "move"
	CmdDisconnect  = "disconnect"
	CmdHelp        = "help"
	commandUnknown = "unknown"
)

var commandAliases = map[string][]string{
	CmdPlay:       {"p", "r", "rolela"},
	CmdPlayNext:   {"pn", "play_next"},
	CmdQueue:      {"q", "c", "cola"},
	CmdSkip:       {"s", "saltela"},
	CmdShuffle:    {"b", "barajela"},
	CmdNowPlaying: {"np", "z", "cual", "zelda"},
	CmdJoin:       {"j", "u", "unete"},
	CmdPause:      {"pa", "d", "pausa", "pare", "detain"},
	CmdResume:     {"re", "siga", "continue"},
	CmdMove:       {"m", "mueva", "coleme"},
	CmdDisconnect: {"dc", "leave"},
	CmdHelp:       {"h", "commands", "ayuda", "comandos", "info", "alias"},
}

var commandIndex = buildCommandIndex()

func buildCommandIndex() map[string]string {
	index := make(map[string]string)
	for name, aliases := range commandAliases {
		index[name] = name
		for _, alias := range aliases {
			index[alias] = name
		}
	}
	return index
}

// ParsedCommand is a prefixed chat message split into command and arguments.
type ParsedCommand struct {
	Name  string // canonical name, or the raw word when unknown
	Args  []string
	Known bool
}

// ParseCommand splits text into a command. It reports false when text does not
// start with prefix or names no command at all.
func ParseCommand(prefix, text string) (ParsedCommand, bool) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return ParsedCommand{}, false
	}

	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return ParsedCommand{}, false
	}

	word := strings.ToLower(fields[0])
	name, known := commandIndex[word]
	if !known {
		name = word
	}
	return ParsedCommand{Name: name, Args: fields[1:], Known: known}, true
}

// worksDisconnected reports whether a command may run while the bot is in no
// voice channel.
func worksDisconnected(name string) bool {
	switch name {
	case CmdPlay, CmdPlayNext, CmdDisconnect, CmdJoin, CmdHelp:
		return true
	}
	return false
}
