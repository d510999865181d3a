// Package mnemonic generates and validates BIP39 seed phrases.
//
// Phrases are handled in normalised form: NFKD, lower case, words separated
// by a single ASCII space. Validate and Entropy accept any whitespace and
// letter case; Generate and Normalize always return the normalised form.
package mnemonic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/seedvault/pkg/crypto"
)

// DefaultStrength is the entropy size used when none is given (24 words).
const DefaultStrength = 256

// ErrInvalidStrength indicates an entropy size that BIP39 does not define.
var ErrInvalidStrength = errors.New("mnemonic: strength must be one of 128, 160, 192, 224, 256 bits")

// ErrInvalidMnemonic indicates a phrase with an unknown word, wrong length or bad checksum.
var ErrInvalidMnemonic = errors.New("mnemonic: invalid mnemonic")

// Strengths lists the supported entropy sizes in bits.
var Strengths = []int{128, 160, 192, 224, 256}

// Generate returns a new phrase encoding strength bits of fresh entropy.
func Generate(strength int) (string, error) {
	if _, err := WordCount(strength); err != nil {
		return "", err
	}

	entropy, err := bip39.NewEntropy(strength)
	if err != nil {
		return "", fmt.Errorf("mnemonic: failed to generate entropy: %w", err)
	}
	defer crypto.SecureWipe(entropy)

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("mnemonic: failed to encode entropy: %w", err)
	}
	return phrase, nil
}

// Validate reports whether candidate is a well-formed phrase: every word is
// in the English wordlist, the word count is supported and the checksum matches.
func Validate(candidate string) bool {
	phrase := Normalize(candidate)
	if phrase == "" {
		return false
	}
	if _, err := wordsToStrength(len(strings.Split(phrase, " "))); err != nil {
		return false
	}
	return bip39.IsMnemonicValid(phrase)
}

// Normalize returns candidate in NFKD form, lower-cased, with words joined by
// single spaces. It does not check validity.
func Normalize(candidate string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFKD.String(candidate))), " ")
}

// WordCount returns the number of words a phrase of the given strength has.
func WordCount(strength int) (int, error) {
	for _, s := range Strengths {
		if s == strength {
			// one checksum bit per 32 bits of entropy, 11 bits per word
			return (strength + strength/32) / 11, nil
		}
	}
	return 0, ErrInvalidStrength
}

// StrengthOf returns the entropy size of a valid phrase.
func StrengthOf(phrase string) (int, error) {
	if !Validate(phrase) {
		return 0, ErrInvalidMnemonic
	}
	return wordsToStrength(len(strings.Fields(phrase)))
}

// Entropy decodes a valid phrase back to its entropy bytes.
// Callers should wipe the result once done with it.
func Entropy(phrase string) ([]byte, error) {
	if !Validate(phrase) {
		return nil, ErrInvalidMnemonic
	}
	entropy, err := bip39.EntropyFromMnemonic(Normalize(phrase))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return entropy, nil
}

func wordsToStrength(words int) (int, error) {
	if words%3 != 0 {
		return 0, ErrInvalidMnemonic
	}
	strength := words * 11 * 32 / 33
	if _, err := WordCount(strength); err != nil {
		return 0, ErrInvalidMnemonic
	}
	return strength, nil
}
