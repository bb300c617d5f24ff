package jwk

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	jose "github.com/picatz/jose/v2/pkg"
)

// Set is a JWK Set, an immutable list of keys.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-5
type Set struct {
	keys []Key
}

// NewSet returns a set containing the given keys.
func NewSet(keys ...Key) *Set {
	s := &Set{keys: make([]Key, 0, len(keys))}
	for _, k := range keys {
		if k != nil {
			s.keys = append(s.keys, k)
		}
	}
	return s
}

// ParseSet parses a JSON encoded JWK Set. Keys with a "kty" that is not
// understood are skipped, any other invalid key fails the whole set.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-5
func ParseSet(data []byte) (*Set, error) {
	var raw struct {
		Keys []Value `json:"keys"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to decode JWK Set JSON: %v", jose.ErrInvalidKey, err)
	}
	if raw.Keys == nil {
		return nil, fmt.Errorf("%w: JWK Set is missing the %q member", jose.ErrInvalidKey, "keys")
	}

	s := &Set{keys: make([]Key, 0, len(raw.Keys))}
	for i, v := range raw.Keys {
		k, err := FromValue(v)
		if errors.Is(err, ErrUnsupportedKeyType) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		s.keys = append(s.keys, k)
	}
	return s, nil
}

// Key returns the first key with the given "kid".
func (s *Set) Key(kid string) (Key, bool) {
	for _, k := range s.keys {
		if k.KeyID() == kid {
			return k, true
		}
	}
	return nil, false
}

// Keys returns the keys in the set, in order.
func (s *Set) Keys() []Key {
	out := make([]Key, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of keys in the set.
func (s *Set) Len() int {
	return len(s.keys)
}

// Public returns a set with the public projection of every asymmetric
// key. Symmetric keys are left out.
func (s *Set) Public() *Set {
	out := &Set{}
	for _, k := range s.keys {
		pub, err := k.Public()
		if err != nil {
			continue
		}
		out.keys = append(out.keys, pub)
	}
	return out
}

// Validate returns an error if the set is empty, or if two keys share a
// "kid" value.
func (s *Set) Validate() error {
	if len(s.keys) == 0 {
		return fmt.Errorf("%w: empty JWK Set", jose.ErrInvalidKey)
	}
	seen := make(map[string]struct{}, len(s.keys))
	for _, k := range s.keys {
		kid := k.KeyID()
		if kid == "" {
			continue
		}
		if _, dup := seen[kid]; dup {
			return fmt.Errorf("%w: duplicate %q value %q in JWK Set", jose.ErrInvalidKey, KeyID, kid)
		}
		seen[kid] = struct{}{}
	}
	return nil
}

// MarshalJSON returns the JWK Set representation, using each key's own
// JSON form.
func (s *Set) MarshalJSON() ([]byte, error) {
	keys := s.keys
	if keys == nil {
		keys = []Key{}
	}
	return json.Marshal(struct {
		Keys []Key `json:"keys"`
	}{Keys: keys})
}
