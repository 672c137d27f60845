package hash

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

type Result int

const (
	Failed Result = iota
	Success
)

func (r Result) String() string {
	if r == Success {
		return "success"
	}
	return "failed"
}

var ErrEmptyPassword = errors.New("password is empty")

// Bcrypt hashes passwords with bcrypt. A zero Cost means bcrypt.DefaultCost.
// Passwords are pre-hashed with SHA-256 so lengths past bcrypt's 72-byte
// input limit are accepted and every byte counts.
type Bcrypt struct {
	Cost int
}

func (b Bcrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashbytes, err := bcrypt.GenerateFromPassword(prehash(password), cost)
	if err != nil {
		return "", err
	}

	return string(hashbytes), nil
}

func (b Bcrypt) Verify(hash, password string) Result {
	if hash == "" || password == "" {
		return Failed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), prehash(password)); err != nil {
		return Failed
	}
	return Success
}

func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
