package auth

import "github.com/alexedwards/argon2id"

var DefaultTokenParams = &argon2id.Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashToken derives the value stored in API_TOKEN_HASH.
func HashToken(token string) (string, error) {
	return argon2id.CreateHash(token, DefaultTokenParams)
}

func CompareToken(token, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(token, hash)
}
