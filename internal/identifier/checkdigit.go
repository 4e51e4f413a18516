package identifier

// ValidCUSIP checks length, character set and the modulus 10 double-add-double
// check digit of a nine character CUSIP.
func ValidCUSIP(s string) bool {
	if len(s) != 9 {
		return false
	}
	sum := 0
	for i := 0; i < 8; i++ {
		v, ok := cusipValue(s[i])
		if !ok {
			return false
		}
		if i%2 == 1 {
			v *= 2
		}
		sum += v/10 + v%10
	}
	last := s[8]
	if last < '0' || last > '9' {
		return false
	}
	return (10-sum%10)%10 == int(last-'0')
}

func cusipValue(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10, true
	case c == '*':
		return 36, true
	case c == '@':
		return 37, true
	case c == '#':
		return 38, true
	}
	return 0, false
}

// ValidISIN checks the two letter country prefix, length and Luhn check
// digit of a twelve character ISIN.
func ValidISIN(s string) bool {
	if len(s) != 12 {
		return false
	}
	if !isUpper(s[0]) || !isUpper(s[1]) || !isDigit(s[11]) {
		return false
	}

	// Letters expand to two digits (A=10 ... Z=35) before the Luhn pass.
	digits := make([]int, 0, 22)
	for i := 0; i < 11; i++ {
		c := s[i]
		switch {
		case isDigit(c):
			digits = append(digits, int(c-'0'))
		case isUpper(c):
			v := int(c-'A') + 10
			digits = append(digits, v/10, v%10)
		default:
			return false
		}
	}

	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		v := digits[i]
		if (len(digits)-1-i)%2 == 0 {
			v *= 2
		}
		sum += v/10 + v%10
	}
	return (10-sum%10)%10 == int(s[11]-'0')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
