package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/poyaz/bytebeats/internal/app/stream/usecase/adapter"
)

var _ adapter.CredentialAdapter = (*store)(nil)

// store maps usernames to hex sha256 password digests. It is never mutated after construction.
type store struct {
	users map[string][]byte
}

func NewStore(users map[string]string) *store {
	s := &store{users: make(map[string][]byte, len(users))}
	for name, digest := range users {
		s.users[name] = []byte(strings.ToLower(strings.TrimSpace(digest)))
	}

	return s
}

// HashPassword returns the digest format stored in the configuration.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (s *store) Len() int {
	return len(s.users)
}

func (s *store) Verify(username, password string) bool {
	candidate := []byte(HashPassword(password))
	digest, ok := s.users[username]
	if !ok {
		subtle.ConstantTimeCompare(candidate, candidate)
		return false
	}

	return subtle.ConstantTimeCompare(candidate, digest) == 1
}
