package smartmessage

import (
	"regexp"
	"strings"
)

const (
	Scheme = "solana:"

	transactionRequestMarker = Scheme + "https://"
	amountMarker             = "amount="
	tokenMarker              = "spl-token="
)

// rule is one step of the detection heuristic. Rules are plain substring
// checks, so markers outside the URI still count.
type rule struct {
	name  string
	match func(text string) bool
}

func contains(marker string) rule {
	return rule{
		name:  marker,
		match: func(text string) bool { return strings.Contains(text, marker) },
	}
}

var (
	transactionRequestRules = []rule{
		contains(transactionRequestMarker),
	}

	transferRequestRules = []rule{
		contains(Scheme),
		contains(amountMarker),
		contains(tokenMarker),
	}
)

func matchAll(rules []rule, text string) bool {
	for _, r := range rules {
		if !r.match(text) {
			return false
		}
	}
	return true
}

var transactionRequestPattern = regexp.MustCompile(`solana:https://(www\.)?[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_\+.~#?&//=]*)`)

// IsTransactionRequest reports whether text carries a well-formed
// transaction request URI. Parse treats those messages as plain text.
func IsTransactionRequest(text string) bool {
	return transactionRequestPattern.MatchString(text)
}

// IsCandidate reports whether Parse would try to extract a transfer request
// from text.
func IsCandidate(text string) bool {
	if matchAll(transactionRequestRules, text) {
		return false
	}
	return matchAll(transferRequestRules, text)
}
