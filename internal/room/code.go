package room

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const CodeLength = 6

// CodeAlphabet leaves out I, O and 0 so codes read back unambiguously.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ123456789"

func NewCode() (string, error) {
	code := make([]byte, CodeLength)
	n := big.NewInt(int64(len(CodeAlphabet)))
	for i := range code {
		num, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		code[i] = CodeAlphabet[num.Int64()]
	}
	return string(code), nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
