package exchange

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// WalletSigner signs the EIP-712/raw-hash payloads the perp-DEX venues
// (Hyperliquid, Lighter) require on every order/cancel/withdraw action,
// built on go-ethereum's secp256k1 implementation rather than hand-
// rolling ECDSA — the same dependency auto_trader.go's Hyperliquid/
// Lighter configuration fields imply (HyperliquidPrivateKey,
// LighterAPIKeyPrivateKey) without itself containing the signing code
// (the concrete trader files were not part of the retrieved pack).
type WalletSigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewWalletSigner parses a hex-encoded secp256k1 private key (with or
// without a leading "0x").
func NewWalletSigner(hexKey string) (*WalletSigner, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
	if err != nil {
		return nil, fmt.Errorf("exchange: parse wallet key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	return &WalletSigner{key: key, address: addr}, nil
}

// Address returns the signer's checksummed address.
func (s *WalletSigner) Address() string { return s.address }

// SignHash signs a 32-byte digest (already hashed per the venue's
// action-encoding scheme) and returns the 65-byte [R || S || V]
// signature.
func (s *WalletSigner) SignHash(digest [32]byte) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return nil, fmt.Errorf("exchange: sign digest: %w", err)
	}
	return sig, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
