package appointment

import "strings"

const minPhoneDigits = 10

// NormalizePhone keeps only the digits of s.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// phoneVariants returns phone plus the other forms the same line may be
// stored or reported under: bare 10 digits, prefix+10 digits, and the
// prefix+"1"+10 digits form WhatsApp uses for Mexican mobiles.
func phoneVariants(phone, prefix string) []string {
	if prefix == "" {
		return []string{phone}
	}
	var local string
	switch {
	case len(phone) == 10:
		local = phone
	case len(phone) == 10+len(prefix) && strings.HasPrefix(phone, prefix):
		local = phone[len(prefix):]
	case len(phone) == 11+len(prefix) && strings.HasPrefix(phone, prefix+"1"):
		local = phone[len(prefix)+1:]
	default:
		return []string{phone}
	}

	variants := []string{phone}
	for _, v := range []string{local, prefix + local, prefix + "1" + local} {
		if v != phone {
			variants = append(variants, v)
		}
	}
	return variants
}
