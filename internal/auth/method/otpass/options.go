package otpass

import "time"

// Range is an inclusive range of runes contributing to a password
// dictionary's character space.
type Range struct {
	Start, End rune
}

// Width returns the number of characters this range contributes.
func (r Range) Width() int { return int(r.End-r.Start) + 1 }

// DefaultDict is "[0-9A-Za-z]", the spec's default password dictionary.
var DefaultDict = []Range{
	{'0', '9'},
	{'A', 'Z'},
	{'a', 'z'},
}

// OTPassOptions parameterizes the one-time-password state machine.
type OTPassOptions struct {
	PassSize   int           // character count of a minted password
	PassDict   []Range       // dictionary ranges; defaults to DefaultDict if nil
	DeadTime   time.Duration // token TTL since mint
	RetryLimit int           // mismatches tolerated before the token is burned
}

func (o OTPassOptions) dict() []Range {
	if len(o.PassDict) == 0 {
		return DefaultDict
	}
	return o.PassDict
}

func (o OTPassOptions) dictLen() int {
	n := 0
	for _, r := range o.dict() {
		n += r.Width()
	}
	return n
}
