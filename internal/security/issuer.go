package security

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// sessionTokenPrefix marks opaque session tokens so they are recognizable in logs and headers.
const sessionTokenPrefix = "sess"

// TokenIssuer mints opaque session tokens. A token is the concatenation of a nanosecond
// timestamp, 16 random bytes and a random UUID, so it is never derivable from the user.
type TokenIssuer struct {
	now func() time.Time
}

// NewTokenIssuer returns a TokenIssuer that stamps tokens with now. A nil now uses time.Now.
func NewTokenIssuer(now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{now: now}
}

// Issue returns a new session token. It panics if the system random source fails;
// the process cannot keep issuing credentials safely in that state.
func (i *TokenIssuer) Issue() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("security: random source exhausted: " + err.Error())
	}
	id := uuid.New()
	var sb strings.Builder
	sb.Grow(96)
	sb.WriteString(sessionTokenPrefix)
	sb.WriteByte('_')
	sb.WriteString(strconv.FormatInt(i.now().UnixNano(), 36))
	sb.WriteByte('_')
	sb.WriteString(hex.EncodeToString(b))
	sb.WriteByte('_')
	sb.WriteString(strings.ReplaceAll(id.String(), "-", ""))
	return sb.String()
}
