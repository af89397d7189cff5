package ocr

// confusionTable maps each digit to the digits Tesseract most often mistakes
// it for on thermal receipt paper.
var confusionTable = map[byte][]byte{
	'5': {'8', '6'},
	'8': {'5', '0'},
	'0': {'8'},
	'1': {'7'},
	'6': {'5'},
	'3': {'8'},
	'7': {'1'},
}

const maxVariants = 5

// ConfusionVariants generates alternate folio candidates by substituting one
// commonly-confused digit at a time (never combined across positions). The
// original number is always first, duplicates are dropped and the result is
// capped at maxVariants entries.
func ConfusionVariants(folio string) []string {
	out := []string{folio}
	seen := map[string]struct{}{folio: {}}
	for i := 0; i < len(folio) && len(out) < maxVariants; i++ {
		subs, ok := confusionTable[folio[i]]
		if !ok {
			continue
		}
		for _, s := range subs {
			if len(out) >= maxVariants {
				break
			}
			v := folio[:i] + string(s) + folio[i+1:]
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
