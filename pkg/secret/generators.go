package secret

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Hex returns a generator producing n random bytes hex-encoded
// (2n characters of output).
func Hex(n int) Generator {
	return func() (string, error) {
		b := make([]byte, n)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		return hex.EncodeToString(b), nil
	}
}

const alphanumerics = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Alphanumeric returns a generator producing n random alphanumeric
// characters, safe to embed in config files and URLs.
func Alphanumeric(n int) Generator {
	return func() (string, error) {
		out := make([]byte, n)
		max := big.NewInt(int64(len(alphanumerics)))
		for i := range out {
			idx, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			out[i] = alphanumerics[idx.Int64()]
		}
		return string(out), nil
	}
}

// Named resolves a generator by its stack-file name. An empty name selects
// the default hex16 generator.
func Named(name string) (Generator, error) {
	switch name {
	case "", "hex16":
		return Hex(16), nil
	case "hex32":
		return Hex(32), nil
	case "alnum24":
		return Alphanumeric(24), nil
	case "alnum32":
		return Alphanumeric(32), nil
	default:
		return nil, fmt.Errorf("unknown secret generator %q", name)
	}
}
