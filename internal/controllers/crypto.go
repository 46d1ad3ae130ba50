package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
)

type CryptoController struct {
	secretKey string
}

func NewCryptoController(secretKey string) *CryptoController {
	return &CryptoController{
		secretKey: secretKey,
	}
}

// GetSignature is the hex HMAC-SHA256 used by Binance, Bybit, MEXC, Phemex and BingX.
func (c *CryptoController) GetSignature(query string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(query))

	return hex.EncodeToString(h.Sum(nil))
}

// GetSignatureBase64 is the base64 HMAC-SHA256 used by OKX.
func (c *CryptoController) GetSignatureBase64(message string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(message))

	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// GetSignatureSHA512 is the hex HMAC-SHA512 used by Gate.
func (c *CryptoController) GetSignatureSHA512(message string) string {
	h := hmac.New(sha512.New, []byte(c.secretKey))
	h.Write([]byte(message))

	return hex.EncodeToString(h.Sum(nil))
}

// HashSHA512 is the plain hex SHA512 of a request body, part of Gate's payload.
func HashSHA512(body []byte) string {
	sum := sha512.Sum512(body)
	return hex.EncodeToString(sum[:])
}
