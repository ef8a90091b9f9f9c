package transform

import "strings"

// accentPairs is the explicit diacritic table used by the text
// transformation's accent stripping. Kept as a flat replacer list so the
// mapping is auditable.
var accentReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "ä", "a", "â", "a", "ā", "a", "ã", "a",
	"é", "e", "è", "e", "ë", "e", "ê", "e", "ē", "e",
	"í", "i", "ì", "i", "ï", "i", "î", "i", "ī", "i",
	"ó", "o", "ò", "o", "ö", "o", "ô", "o", "ō", "o", "õ", "o",
	"ú", "u", "ù", "u", "ü", "u", "û", "u", "ū", "u",
	"ñ", "n", "ç", "c",
	"Á", "A", "À", "A", "Ä", "A", "Â", "A", "Ā", "A", "Ã", "A",
	"É", "E", "È", "E", "Ë", "E", "Ê", "E", "Ē", "E",
	"Í", "I", "Ì", "I", "Ï", "I", "Î", "I", "Ī", "I",
	"Ó", "O", "Ò", "O", "Ö", "O", "Ô", "O", "Ō", "O", "Õ", "O",
	"Ú", "U", "Ù", "U", "Ü", "U", "Û", "U", "Ū", "U",
	"Ñ", "N", "Ç", "C",
)

// removeAccents replaces accented characters using the explicit table.
func removeAccents(s string) string {
	return accentReplacer.Replace(s)
}
