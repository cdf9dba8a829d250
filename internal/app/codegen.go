package app

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/WatchSync/internal/domain"
)

// DefaultAlphabet skips look-alike characters (0/O, 1/I/L).
const DefaultAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeGenerator produces candidate room codes. Collisions are handled by
// the registry.
type CodeGenerator interface {
	Generate() (domain.RoomCode, error)
}

type AlphabetGenerator struct {
	Alphabet string
	Length   int
}

func NewAlphabetGenerator(length int) AlphabetGenerator {
	return AlphabetGenerator{Alphabet: DefaultAlphabet, Length: length}
}

func (g AlphabetGenerator) Generate() (domain.RoomCode, error) {
	size := big.NewInt(int64(len(g.Alphabet)))
	var sb strings.Builder
	sb.Grow(g.Length)
	for i := 0; i < g.Length; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		sb.WriteByte(g.Alphabet[n.Int64()])
	}
	return domain.RoomCode(sb.String()), nil
}

// fallbackCode derives a code from the clock; attempt disambiguates codes
// generated within the same millisecond.
func fallbackCode(now time.Time, length, attempt int) domain.RoomCode {
	s := strings.ToUpper(strconv.FormatInt(now.UnixMilli()+int64(attempt), 36))
	if len(s) > length {
		s = s[len(s)-length:]
	}
	return domain.RoomCode(s)
}
