// Package siwe parses Sign-In with Ethereum (EIP-4361) messages and
// recovers the address that signed them.
package siwe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

const headerSuffix = " wants you to sign in with your Ethereum account:"

// fidResourcePrefix marks the resource carrying the signer's Farcaster id.
const fidResourcePrefix = "farcaster://fid/"

var (
	ErrMalformed = errors.New("malformed sign-in message")
	ErrExpired   = errors.New("sign-in message expired")
	ErrNotYet    = errors.New("sign-in message not yet valid")
)

// Message is a parsed EIP-4361 message.
type Message struct {
	Domain         string
	Address        ethcommon.Address
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime time.Time
	NotBefore      time.Time
	RequestID      string
	Resources      []string
}

// Parse reads an EIP-4361 message. Unknown lines before the URI field are
// taken as the statement.
func Parse(raw string) (*Message, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("%w: too short", ErrMalformed)
	}

	domain, ok := strings.CutSuffix(lines[0], headerSuffix)
	if !ok || domain == "" {
		return nil, fmt.Errorf("%w: bad header", ErrMalformed)
	}

	addr := strings.TrimSpace(lines[1])
	if !ethcommon.IsHexAddress(addr) {
		return nil, fmt.Errorf("%w: bad address %q", ErrMalformed, addr)
	}

	m := &Message{Domain: domain, Address: ethcommon.HexToAddress(addr)}

	var statement []string
	inResources := false
	seen := make(map[string]bool)

	for _, line := range lines[2:] {
		if line == "" {
			continue
		}

		if inResources {
			if res, ok := strings.CutPrefix(line, "- "); ok {
				m.Resources = append(m.Resources, res)
				continue
			}
			return nil, fmt.Errorf("%w: unexpected line after resources", ErrMalformed)
		}

		if line == "Resources:" {
			inResources = true
			continue
		}

		key, value, found := strings.Cut(line, ": ")
		if !found || !isField(key) {
			if m.URI != "" {
				return nil, fmt.Errorf("%w: unexpected line %q", ErrMalformed, line)
			}
			statement = append(statement, line)
			continue
		}

		if seen[key] {
			return nil, fmt.Errorf("%w: repeated %s", ErrMalformed, key)
		}
		seen[key] = true

		if err := m.assign(key, value); err != nil {
			return nil, err
		}
	}

	m.Statement = strings.Join(statement, "\n")

	if m.URI == "" || m.Version == "" || m.Nonce == "" || m.IssuedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing required field", ErrMalformed)
	}

	return m, nil
}

func isField(key string) bool {
	switch key {
	case "URI", "Version", "Chain ID", "Nonce", "Issued At", "Expiration Time", "Not Before", "Request ID":
		return true
	}
	return false
}

func (m *Message) assign(key, value string) error {
	var err error
	switch key {
	case "URI":
		m.URI = value
	case "Version":
		m.Version = value
	case "Chain ID":
		m.ChainID, err = strconv.ParseInt(value, 10, 64)
	case "Nonce":
		m.Nonce = value
	case "Issued At":
		m.IssuedAt, err = time.Parse(time.RFC3339Nano, value)
	case "Expiration Time":
		m.ExpirationTime, err = time.Parse(time.RFC3339Nano, value)
	case "Not Before":
		m.NotBefore, err = time.Parse(time.RFC3339Nano, value)
	case "Request ID":
		m.RequestID = value
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	return nil
}

// FID returns the Farcaster id claimed in the resources list.
func (m *Message) FID() (int64, bool) {
	for _, r := range m.Resources {
		v, ok := strings.CutPrefix(r, fidResourcePrefix)
		if !ok {
			continue
		}
		fid, err := strconv.ParseInt(v, 10, 64)
		if err != nil || fid <= 0 {
			return 0, false
		}
		return fid, true
	}
	return 0, false
}

// ValidAt checks the optional time bounds of the message.
func (m *Message) ValidAt(now time.Time) error {
	if !m.ExpirationTime.IsZero() && !now.Before(m.ExpirationTime) {
		return ErrExpired
	}
	if !m.NotBefore.IsZero() && now.Before(m.NotBefore) {
		return ErrNotYet
	}
	return nil
}

// String renders m in the EIP-4361 layout.
func (m *Message) String() string {
	var b strings.Builder

	b.WriteString(m.Domain + headerSuffix + "\n")
	b.WriteString(m.Address.Hex() + "\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", m.Version)
	fmt.Fprintf(&b, "Chain ID: %d\n", m.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", m.IssuedAt.UTC().Format(time.RFC3339))
	if !m.ExpirationTime.IsZero() {
		fmt.Fprintf(&b, "\nExpiration Time: %s", m.ExpirationTime.UTC().Format(time.RFC3339))
	}
	if !m.NotBefore.IsZero() {
		fmt.Fprintf(&b, "\nNot Before: %s", m.NotBefore.UTC().Format(time.RFC3339))
	}
	if m.RequestID != "" {
		fmt.Fprintf(&b, "\nRequest ID: %s", m.RequestID)
	}
	if len(m.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range m.Resources {
			b.WriteString("\n- " + r)
		}
	}

	return b.String()
}
