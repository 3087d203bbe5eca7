package siwe

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

const signatureLen = 65

var ErrBadSignature = errors.New("bad signature")

// HashMessage returns the EIP-191 personal_sign digest of msg.
func HashMessage(msg string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(msg)) + msg))
	return h.Sum(nil)
}

// DecodeSignature parses a hex signature with or without the 0x prefix.
func DecodeSignature(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if len(b) != signatureLen {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrBadSignature, signatureLen, len(b))
	}
	return b, nil
}

// RecoverAddress returns the address whose key produced sig over msg.
// Both 0/1 and 27/28 recovery ids are accepted.
func RecoverAddress(msg string, sig []byte) (ethcommon.Address, error) {
	if len(sig) != signatureLen {
		return ethcommon.Address{}, fmt.Errorf("%w: want %d bytes, got %d", ErrBadSignature, signatureLen, len(sig))
	}

	s := make([]byte, signatureLen)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}
	if s[64] > 1 {
		return ethcommon.Address{}, fmt.Errorf("%w: recovery id %d", ErrBadSignature, sig[64])
	}

	pub, err := crypto.SigToPub(HashMessage(msg), s)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether sig over msg was produced by addr.
func Verify(msg string, sig []byte, addr ethcommon.Address) error {
	got, err := RecoverAddress(msg, sig)
	if err != nil {
		return err
	}
	if got != addr {
		return fmt.Errorf("%w: signed by %s", ErrBadSignature, got.Hex())
	}
	return nil
}
