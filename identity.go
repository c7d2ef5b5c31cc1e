package normcache

import "strings"

const identitySeparator = ":"

// Identity is the normalized cache key of an entity: "<type>:<id>".
type Identity string

// Identify computes the identity of an entity from its type tag and primary key.
// Type tags may not contain the separator, which keeps identities collision-free.
func Identify(typeTag, id string) (Identity, error) {
	if typeTag == "" || id == "" || strings.Contains(typeTag, identitySeparator) {
		return "", ErrUnidentifiable
	}
	return Identity(typeTag + identitySeparator + id), nil
}

// Split returns the type tag and primary key encoded in the identity.
// ok is false for malformed identities.
func (k Identity) Split() (typeTag, id string, ok bool) {
	typeTag, id, found := strings.Cut(string(k), identitySeparator)
	if !found || typeTag == "" || id == "" {
		return "", "", false
	}
	return typeTag, id, true
}

// Valid reports whether the identity can be split into a type tag and id.
func (k Identity) Valid() bool {
	_, _, ok := k.Split()
	return ok
}

func (k Identity) String() string { return string(k) }
