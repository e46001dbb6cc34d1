package cabin

import (
	"errors"
	"strings"
)

var (
	ErrRumorUnchanged = errors.New("the murderer must alter a rumor before passing it on")
	ErrRumorMismatch  = errors.New("retyped rumor does not match the card")
)

// CheckRumor validates the text a player is about to send for a rumor card
// and returns the text that reaches the recipient. The murderer has to
// change the card; everyone else has to retype it exactly.
func CheckRumor(isMurderer bool, card, typed string) (string, error) {
	if isMurderer {
		edited := strings.TrimSpace(typed)
		if edited == "" || edited == strings.TrimSpace(card) {
			return "", ErrRumorUnchanged
		}
		return edited, nil
	}
	if typed != card {
		return "", ErrRumorMismatch
	}
	return card, nil
}
