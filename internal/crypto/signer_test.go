package crypto

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known throwaway key, never funded.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

const testExchangeAddr = "0xC628e81B506b572391669339c2AbaCFafa0d95dD"

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(testKeyHex, 10143, testExchangeAddr)
	require.NoError(t, err)
	return s
}

func testOrderMessage(s *Signer) OrderMessage {
	return OrderMessage{
		Trader:   s.Address().Hex(),
		MarketID: 42,
		IsBuy:    true,
		IsYes:    true,
		PriceBps: 4500,
		Amount:   big.NewInt(10_000_000),
		Nonce:    1_700_000_000_000,
		Expiry:   1_700_000_360,
	}
}

func TestNewSigner_InvalidKey(t *testing.T) {
	_, err := NewSigner("not-hex", 1, testExchangeAddr)
	assert.Error(t, err)
}

func TestNewSigner_AcceptsPrefix(t *testing.T) {
	a, err := NewSigner(testKeyHex, 10143, testExchangeAddr)
	require.NoError(t, err)
	b, err := NewSigner("0x"+testKeyHex, 10143, testExchangeAddr)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), b.Address())
}

func TestOrderDigest_Deterministic(t *testing.T) {
	s := newTestSigner(t)
	msg := testOrderMessage(s)

	d1, err := s.OrderDigest(msg)
	require.NoError(t, err)
	d2, err := s.OrderDigest(msg)
	require.NoError(t, err)
	assert.Equal(t, d1, d2, "same message must digest identically")
	assert.Len(t, d1, 32)

	// Any field change moves the digest.
	msg.PriceBps = 4501
	d3, err := s.OrderDigest(msg)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestOrderDigest_DomainSeparation(t *testing.T) {
	a, err := NewSigner(testKeyHex, 10143, testExchangeAddr)
	require.NoError(t, err)
	b, err := NewSigner(testKeyHex, 143, testExchangeAddr)
	require.NoError(t, err)

	msg := testOrderMessage(a)
	da, err := a.OrderDigest(msg)
	require.NoError(t, err)
	db, err := b.OrderDigest(msg)
	require.NoError(t, err)
	assert.NotEqual(t, da, db, "chain id binds the digest")
}

func TestSignOrder_Recovers(t *testing.T) {
	s := newTestSigner(t)
	msg := testOrderMessage(s)

	sig, err := s.SignOrder(msg)
	require.NoError(t, err)
	assert.Len(t, sig, 2+65*2, "0x plus 65 bytes hex")

	recovered, err := s.RecoverOrderSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recovered)
}

func TestRecoverOrderSigner_RejectsMalformed(t *testing.T) {
	s := newTestSigner(t)
	_, err := s.RecoverOrderSigner(testOrderMessage(s), "0xdeadbeef")
	assert.Error(t, err)
}

func TestOrderDigest_RejectsBadAmount(t *testing.T) {
	s := newTestSigner(t)
	msg := testOrderMessage(s)

	msg.Amount = nil
	_, err := s.OrderDigest(msg)
	assert.Error(t, err)

	msg.Amount = big.NewInt(-1)
	_, err = s.OrderDigest(msg)
	assert.Error(t, err)
}

func TestCancelMessage_Format(t *testing.T) {
	msg := CancelMessage("ord-123", 1700000000000)
	assert.Equal(t, "Cancel order ord-123\nTimestamp: 1700000000000", msg)
}

func TestSignCancel(t *testing.T) {
	s := newTestSigner(t)
	msg, sig, err := s.SignCancel("ord-123", 1700000000000)
	require.NoError(t, err)
	assert.Equal(t, CancelMessage("ord-123", 1700000000000), msg)
	assert.Len(t, sig, 2+65*2)
}
