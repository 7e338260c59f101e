// Package cryptojs implements the passphrase form of CryptoJS AES:
// AES.encrypt(text, passphrase).toString().
//
// The output is the OpenSSL "salted" envelope, base64 encoded:
//
//	"Salted__" || salt[8] || AES-256-CBC(PKCS#7(plaintext))
//
// with key and IV derived from passphrase and salt by EVP_BytesToKey using a
// single MD5 iteration.  The login page hands out the passphrase; the server
// decrypts the credentials with the same derivation.
package cryptojs

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5" // #nosec G501 -- EVP_BytesToKey is defined over MD5
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	saltSize = 8
	keySize  = 32
	ivSize   = aes.BlockSize
)

var saltedMagic = []byte("Salted__")

// randReader is swapped in tests to get deterministic salts.
var randReader io.Reader = rand.Reader

// ErrMalformed is returned by Decrypt for input that is not a salted envelope.
var ErrMalformed = errors.New("cryptojs: malformed ciphertext")

// Encrypt encrypts plaintext under passphrase and returns the base64 envelope.
func Encrypt(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("cryptojs: empty passphrase")
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return "", fmt.Errorf("cryptojs: read salt: %w", err)
	}
	return encryptWithSalt([]byte(plaintext), []byte(passphrase), salt)
}

func encryptWithSalt(plaintext, passphrase, salt []byte) (string, error) {
	key, iv := deriveKeyIV(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cryptojs: new cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(saltedMagic)+saltSize+len(padded))
	copy(out, saltedMagic)
	copy(out[len(saltedMagic):], salt)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[len(saltedMagic)+saltSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func Decrypt(envelope, passphrase string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("cryptojs: decode base64: %w", err)
	}
	header := len(saltedMagic) + saltSize
	if len(raw) < header+aes.BlockSize || !bytes.HasPrefix(raw, saltedMagic) {
		return "", ErrMalformed
	}
	body := raw[header:]
	if len(body)%aes.BlockSize != 0 {
		return "", ErrMalformed
	}
	key, iv := deriveKeyIV([]byte(passphrase), raw[len(saltedMagic):header])
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cryptojs: new cipher: %w", err)
	}
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)
	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// deriveKeyIV is OpenSSL's EVP_BytesToKey(MD5, count=1).
func deriveKeyIV(passphrase, salt []byte) (key, iv []byte) {
	var (
		derived []byte
		prev    []byte
	)
	for len(derived) < keySize+ivSize {
		h := md5.New() // #nosec G401
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keySize], derived[keySize : keySize+ivSize]
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrMalformed
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errors.New("cryptojs: bad padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("cryptojs: bad padding")
		}
	}
	return b[:len(b)-n], nil
}
