package game

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"regexp"
	"time"
)

// codeAlphabet omits easily-confused characters (I, O, 0, 1).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

var codePattern = regexp.MustCompile(`^[A-Z0-9]{3,6}$`)

// ValidCode reports whether code is 3-6 uppercase alphanumeric characters.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// RandomCode generates a 5-character game code via crypto/rand, rejecting
// bytes that would bias the distribution.
func RandomCode() string {
	return randomString(codeAlphabet, 5)
}

// RandomPIN generates a 4-digit player PIN in the range 1000-9999.
func RandomPIN() string {
	const digits = "0123456789"
	return randomString("123456789", 1) + randomString(digits, 3)
}

// NewEliminationID builds an id from the timestamp plus a short random
// suffix. Collisions are accepted as negligible, not guaranteed impossible.
func NewEliminationID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), randomString(suffixAlphabet, 5))
}

// randomIndex returns a uniform random int in [0, n) via crypto/rand,
// rejecting draws that would bias the distribution.
func randomIndex(n int) int {
	if n <= 0 {
		panic("randomIndex: n must be positive")
	}

	limit := (1 << 32) - ((1 << 32) % uint64(n))
	var buf [4]byte

	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		v := uint64(binary.BigEndian.Uint32(buf[:]))
		if v < limit {
			return int(v % uint64(n))
		}
	}
}

func randomString(alphabet string, n int) string {
	max := byte(255 - (256 % len(alphabet)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, alphabet[int(b)%len(alphabet)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}
}
