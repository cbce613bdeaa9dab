// Package crypto provides key management and the two signing schemes the
// venue requires: EIP-712 typed orders and EIP-191 cancel authorizations.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// EIP-712 domain parameters for the venue's exchange contract.
const (
	domainName    = "BlackjackExchange"
	domainVersion = "1"
)

// Pre-computed keccak256 of the canonical EIP-712 type strings.
var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Order(address trader,uint64 marketId,bool isBuy,bool isYes,uint64 price,uint128 amount,uint64 nonce,uint64 expiry)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(address trader,uint64 marketId,bool isBuy,bool isYes,uint64 price,uint128 amount,uint64 nonce,uint64 expiry)"),
	)
)

// OrderMessage is the exact typed payload the exchange verifies. Amount is a
// uint128 on the wire, so it travels as *big.Int. Building the same message
// from the same intent must be reproducible byte-for-byte; every field here
// is either copied from the intent or fixed at planning time (nonce, expiry).
type OrderMessage struct {
	Trader   string
	MarketID uint64
	IsBuy    bool
	IsYes    bool
	PriceBps uint64
	Amount   *big.Int
	Nonce    uint64
	Expiry   uint64
}

// Signer signs order and cancel payloads for one wallet under the venue's
// domain-separated scheme.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
	domainSep  []byte // cached EIP-712 domain separator hash
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key, the
// target chain ID, and the exchange contract address the domain separator
// binds to.
func NewSigner(privateKeyHex string, chainID int64, exchangeAddress string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	s := &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}
	s.domainSep = buildDomainSeparator(chainID, common.HexToAddress(exchangeAddress))

	return s, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer's domain separator binds to.
func (s *Signer) ChainID() int64 {
	return s.chainID
}

// SignOrder signs an OrderMessage and returns a hex-encoded 65-byte
// signature (r || s || v with v in {27, 28}).
func (s *Signer) SignOrder(msg OrderMessage) (string, error) {
	digest, err := s.OrderDigest(msg)
	if err != nil {
		return "", err
	}
	return s.signDigest(digest)
}

// OrderDigest computes the EIP-712 digest for msg. Exposed so the digest can
// be independently reproduced and verified.
func (s *Signer) OrderDigest(msg OrderMessage) ([]byte, error) {
	if msg.Amount == nil || msg.Amount.Sign() < 0 {
		return nil, fmt.Errorf("crypto/signer: invalid amount")
	}

	trader := common.HexToAddress(msg.Trader)
	structHash := ethcrypto.Keccak256(concatBytes(
		orderTypeHash,
		common.LeftPadBytes(trader.Bytes(), 32),
		uint64To32Bytes(msg.MarketID),
		boolTo32Bytes(msg.IsBuy),
		boolTo32Bytes(msg.IsYes),
		uint64To32Bytes(msg.PriceBps),
		bigIntTo32Bytes(msg.Amount),
		uint64To32Bytes(msg.Nonce),
		uint64To32Bytes(msg.Expiry),
	))

	return eip712Hash(s.domainSep, structHash), nil
}

// CancelMessage formats the plain cancel authorization text for an order id
// and millisecond timestamp. The timestamp bounds the authorization's
// freshness so a captured cancel cannot be replayed later.
func CancelMessage(orderID string, timestampMs int64) string {
	return fmt.Sprintf("Cancel order %s\nTimestamp: %d", orderID, timestampMs)
}

// SignCancel signs the EIP-191 personal message authorizing cancellation of
// orderID at timestampMs. It returns the message text and the hex signature.
func (s *Signer) SignCancel(orderID string, timestampMs int64) (message, signature string, err error) {
	message = CancelMessage(orderID, timestampMs)
	digest := personalHash([]byte(message))
	signature, err = s.signDigest(digest)
	return message, signature, err
}

// RecoverOrderSigner recovers the address that produced signature over msg.
// Used to independently verify signatures without the private key.
func (s *Signer) RecoverOrderSigner(msg OrderMessage, signature string) (common.Address, error) {
	digest, err := s.OrderDigest(msg)
	if err != nil {
		return common.Address{}, err
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: malformed signature")
	}
	// Normalise v back to {0,1} for recovery.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns
// keccak256(abi.encode(typeHash, nameHash, versionHash, chainId, contract)).
func buildDomainSeparator(chainID int64, contract common.Address) []byte {
	return ethcrypto.Keccak256(concatBytes(
		eip712DomainTypeHash,
		ethcrypto.Keccak256([]byte(domainName)),
		ethcrypto.Keccak256([]byte(domainVersion)),
		bigIntTo32Bytes(big.NewInt(chainID)),
		common.LeftPadBytes(contract.Bytes(), 32),
	))
}

// eip712Hash computes keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concatBytes(
		[]byte{0x19, 0x01},
		domainSep,
		structHash,
	))
}

// personalHash computes the EIP-191 personal-sign digest of msg.
func personalHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return ethcrypto.Keccak256(concatBytes([]byte(prefix), msg))
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; the venue expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

func uint64To32Bytes(v uint64) []byte {
	return bigIntTo32Bytes(new(big.Int).SetUint64(v))
}

func boolTo32Bytes(b bool) []byte {
	out := make([]byte, 32)
	if b {
		out[31] = 1
	}
	return out
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
