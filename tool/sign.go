package tool

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var ErrInvalidSignature = errors.New("invalid signature")

// SignMessage 对消息 sha256 后用 secp256k1 私钥签名，返回 DER 编码的 hex
func SignMessage(message, privateKeyHex string) (string, error) {
	keyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	privateKey, _ := btcec.PrivKeyFromBytes(keyBytes)
	sig := ecdsa.Sign(privateKey, chainhash.HashB([]byte(message)))
	return hex.EncodeToString(sig.Serialize()), nil
}

// VerifySign 校验 SignMessage 生成的签名，publicKeyHex 为压缩或非压缩公钥
func VerifySign(message, signatureHex, publicKeyHex string) (bool, error) {
	pubBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false, fmt.Errorf("decode public key: %w", err)
	}
	publicKey, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return false, fmt.Errorf("parse public key: %w", err)
	}
	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return sig.Verify(chainhash.HashB([]byte(message)), publicKey), nil
}

// PublicKeyHex 私钥对应的压缩公钥
func PublicKeyHex(privateKeyHex string) (string, error) {
	keyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return "", err
	}
	privateKey, _ := btcec.PrivKeyFromBytes(keyBytes)
	return hex.EncodeToString(privateKey.PubKey().SerializeCompressed()), nil
}
