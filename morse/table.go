// Package morse holds the fixed Morse symbol table and the translation helpers
// shared by the live decoder and the offline replay tool.
//
// Symbols are written with '.' for a dit and '-' for a dah. A character is one
// symbol group ("..."), characters are separated by a single space and words by
// the separator group "/":
//
//	.... . .-.. .-.. --- / .-- --- .-. .-.. -..   ->   HELLO WORLD
//
// Lookups never fail: groups absent from the table translate to Unknown so every
// keyed sequence produces some text.
package morse

const (
	// Dit and Dah are the two symbol primitives.
	Dit = '.'
	Dah = '-'

	// WordSeparator is the symbol group that stands for a space between words.
	WordSeparator = "/"

	// Unknown replaces any group that has no table entry.
	Unknown = "?"
)

// symbolTable maps symbol groups to characters.
var symbolTable = map[string]string{
	// Letters
	".-":   "A",
	"-...": "B",
	"-.-.": "C",
	"-..":  "D",
	".":    "E",
	"..-.": "F",
	"--.":  "G",
	"....": "H",
	"..":   "I",
	".---": "J",
	"-.-":  "K",
	".-..": "L",
	"--":   "M",
	"-.":   "N",
	"---":  "O",
	".--.": "P",
	"--.-": "Q",
	".-.":  "R",
	"...":  "S",
	"-":    "T",
	"..-":  "U",
	"...-": "V",
	".--":  "W",
	"-..-": "X",
	"-.--": "Y",
	"--..": "Z",

	// Numbers
	"-----": "0",
	".----": "1",
	"..---": "2",
	"...--": "3",
	"....-": "4",
	".....": "5",
	"-....": "6",
	"--...": "7",
	"---..": "8",
	"----.": "9",

	// Punctuation
	".-.-.-": ".",
	"--..--": ",",
	"..--..": "?",
	".----.": "'",
	"-.-.--": "!",
	"-..-.":  "/",
	"-.--.":  "(",
	"-.--.-": ")",
	".-...":  "&",
	"---...": ":",
	"-.-.-.": ";",
	"-...-":  "=",
	".-.-.":  "+",
	"-....-": "-",
	".-..-.": "\"",
	".--.-.": "@",

	WordSeparator: " ",
}

// characterTable is the reverse of symbolTable, built once at init.
var characterTable = func() map[rune]string {
	out := make(map[rune]string, len(symbolTable))
	for group, char := range symbolTable {
		r := []rune(char)
		if len(r) != 1 {
			continue
		}
		out[r[0]] = group
	}
	return out
}()

// Lookup returns the character for a symbol group and whether the group is known.
func Lookup(group string) (string, bool) {
	char, ok := symbolTable[group]
	return char, ok
}

// Decode converts one symbol group to its character, or Unknown when the
// group has no entry. An empty group decodes to an empty string.
func Decode(group string) string {
	if group == "" {
		return ""
	}
	if char, ok := symbolTable[group]; ok {
		return char
	}
	return Unknown
}

// Symbols returns the symbol group for a character (case-insensitive for letters).
func Symbols(r rune) (string, bool) {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	group, ok := characterTable[r]
	return group, ok
}

// IsSymbol reports whether r is a dit or a dah.
func IsSymbol(r rune) bool {
	return r == Dit || r == Dah
}
