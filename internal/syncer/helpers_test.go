package syncer_test

import "archsync/internal/textrange"

func rangeAt(line, start, end int) textrange.SimpleRange {
	return textrange.SimpleRange{
		Start: textrange.Point{Line: line, Char: start},
		End:   textrange.Point{Line: line, Char: end},
	}
}
