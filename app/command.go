package app

import "strings"

const toneFlag = "--tone"

// ParseCommand splits slash command text into the text to rewrite and an
// optional tone. The last "--tone" wins; the word after it is the tone and
// whatever surrounds the pair becomes the text.
//
//	"do not rephrase this --tone informal" -> ("do not rephrase this", "informal")
//	"--tone informal do not rephrase this" -> ("do not rephrase this", "informal")
func ParseCommand(raw string) (text, tone string) {
	idx := strings.LastIndex(raw, toneFlag)
	if idx == -1 {
		return strings.TrimSpace(raw), ""
	}

	before := strings.TrimSpace(raw[:idx])
	words := strings.Fields(raw[idx+len(toneFlag):])
	if len(words) == 0 {
		return before, ""
	}

	tone = words[0]
	text = before
	if len(words) > 1 {
		text = strings.TrimSpace(before + " " + strings.Join(words[1:], " "))
	}
	return text, tone
}
