// Package template implements the positional-holder substitution used by
// every generator: a source or cleanup template names its
// operation's own arguments as $0, $1, ... in declaration order, its
// return value as $R, an array's length as $L, and the operation's
// mapping id as $M.
package template

import (
	"regexp"
	"strconv"
)

var holder = regexp.MustCompile(`\$(\d+|R|L|M)`)

// Render substitutes $0..$N, $R, $L and $M in tpl. args are substituted
// positionally; ret, length and module are substituted for $R, $L and $M
// respectively (callers pass the mapping id as module) and may be left
// empty when the template does not use them.
// A regexp, rather than strings.Replacer, is used deliberately: Replacer
// matches the first listed pattern at each position, so "$1" would win
// over "$10" regardless of which is longer; the regexp always consumes
// the full run of digits.
func Render(tpl string, args []string, ret, length, module string) string {
	return holder.ReplaceAllStringFunc(tpl, func(match string) string {
		switch key := match[1:]; key {
		case "R":
			return ret
		case "L":
			return length
		case "M":
			return module
		default:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(args) {
				return match
			}
			return args[idx]
		}
	})
}
