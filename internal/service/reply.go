package service

import "strings"

// Reply is the meaning of an inbound customer SMS.
type Reply int

const (
	ReplyUnknown Reply = iota
	ReplyAffirmative
	ReplyNegative
)

func (r Reply) String() string {
	switch r {
	case ReplyAffirmative:
		return "affirmative"
	case ReplyNegative:
		return "negative"
	default:
		return "unknown"
	}
}

// ParseReply accepts English and French yes/no answers, ignoring case,
// surrounding whitespace and trailing punctuation.
func ParseReply(body string) Reply {
	word := strings.ToUpper(strings.TrimSpace(body))
	word = strings.TrimRight(word, ".!? ")

	switch word {
	case "Y", "YES", "O", "OUI":
		return ReplyAffirmative
	case "N", "NO", "NON":
		return ReplyNegative
	default:
		return ReplyUnknown
	}
}
