package account

import "golang.org/x/crypto/bcrypt"

// Signer hashes and verifies passwords.
type Signer interface {
	Sign(pass string) (string, error)
	Verify(hash, pass string) error
}

// Bcrypt is the default Signer.
type Bcrypt struct {
	Cost int
}

func (b Bcrypt) Sign(pass string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (b Bcrypt) Verify(hash, pass string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass))
}
