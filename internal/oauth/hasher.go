package oauth

import "golang.org/x/crypto/bcrypt"

// DefaultCost matches the work factor accounts have always been hashed with.
const DefaultCost = 10

// Interface that allows password hashing to be customized.
type Hasher interface {
	// Generate a hashed password from a plaintext password.
	Generate(password []byte) ([]byte, error)

	// Compare a hashed password with a plaintext password.
	Compare(hashedPassword, password []byte) error
}

// DefaultHasher hashes with bcrypt at DefaultCost.
var DefaultHasher = BcryptHasher{Cost: DefaultCost}

// BcryptHasher hashes passwords with bcrypt. A zero Cost means DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Generate(password []byte) ([]byte, error) {
	cost := h.Cost
	if cost == 0 {
		cost = DefaultCost
	}
	return bcrypt.GenerateFromPassword(password, cost)
}

func (BcryptHasher) Compare(hashedPassword, password []byte) error {
	return bcrypt.CompareHashAndPassword(hashedPassword, password)
}
