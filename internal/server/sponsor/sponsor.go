// Package sponsor holds the app's custody key and signs SignedKeyRequest
// sponsorships for new signers.
package sponsor

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/dmitrijs2005/signerrelay/internal/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/tyler-smith/go-bip39"
)

// Farcaster's SignedKeyRequestValidator on OP mainnet.
const (
	validatorName     = "Farcaster SignedKeyRequestValidator"
	validatorVersion  = "1"
	validatorChainID  = 10
	validatorContract = "0x00000000FC700472606ED4fA22623Acf62c60553"
)

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// custodyPath is m/44'/60'/0'/0/0, the first Ethereum account.
var custodyPath = []uint32{
	hdkeychain.HardenedKeyStart + 44,
	hdkeychain.HardenedKeyStart + 60,
	hdkeychain.HardenedKeyStart + 0,
	0,
	0,
}

// Sponsorship is a signed request to add a signer key on behalf of the app.
type Sponsorship struct {
	RequestFID int64
	Key        []byte
	Deadline   time.Time
	Signature  []byte
}

// Sponsor is the app identity that attests for new signers.
type Sponsor struct {
	fid  int64
	key  *ecdsa.PrivateKey
	addr ethcommon.Address
}

// FromMnemonic derives the custody key of fid from a BIP-39 mnemonic.
func FromMnemonic(fid int64, mnemonic string) (*Sponsor, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}

	key, err := deriveKey(seed)
	if err != nil {
		return nil, err
	}

	return New(fid, key), nil
}

// New wraps an existing custody key.
func New(fid int64, key *ecdsa.PrivateKey) *Sponsor {
	return &Sponsor{fid: fid, key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func deriveKey(seed []byte) (*ecdsa.PrivateKey, error) {
	k, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	for _, index := range custodyPath {
		k, err = k.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("derive key: %w", err)
		}
	}

	priv, err := k.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("get private key: %w", err)
	}

	b := priv.Serialize()
	defer common.WipeByteArray(b)

	return crypto.ToECDSA(b)
}

func (s *Sponsor) FID() int64 {
	return s.fid
}

func (s *Sponsor) Address() ethcommon.Address {
	return s.addr
}

// SignKeyRequest signs the EIP-712 SignedKeyRequest for key, valid until deadline.
func (s *Sponsor) SignKeyRequest(key []byte, deadline time.Time) (*Sponsorship, error) {
	hash, err := KeyRequestHash(s.fid, key, deadline)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign key request: %w", err)
	}
	sig[64] += 27

	return &Sponsorship{RequestFID: s.fid, Key: key, Deadline: deadline, Signature: sig}, nil
}

// KeyRequestHash is the EIP-712 digest a SignedKeyRequest signature covers.
func KeyRequestHash(fid int64, key []byte, deadline time.Time) ([]byte, error) {
	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"SignedKeyRequest": {
				{Name: "requestFid", Type: "uint256"},
				{Name: "key", Type: "bytes"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "SignedKeyRequest",
		Domain: apitypes.TypedDataDomain{
			Name:              validatorName,
			Version:           validatorVersion,
			ChainId:           math.NewHexOrDecimal256(validatorChainID),
			VerifyingContract: validatorContract,
		},
		Message: apitypes.TypedDataMessage{
			"requestFid": big.NewInt(fid),
			"key":        key,
			"deadline":   big.NewInt(deadline.Unix()),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("hash key request: %w", err)
	}
	return hash, nil
}
