// Package secretbox cifra secretos de configuración (DSN de postgres, password
// de redis) con una clave maestra de PORTAL_SECRETBOX_KEY.
//
// A diferencia de tokencipher, la clave acá sí es un secreto de la instalación.
// Un valor de config con prefijo "enc:" se descifra al cargar la config.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	// EnvVar contiene la clave maestra en base64 (32 bytes).
	EnvVar = "PORTAL_SECRETBOX_KEY"
	// Prefix marca un valor de configuración cifrado.
	Prefix = "enc:"

	nonceSizeGCM      = 12
	requiredKeyLength = 32
	sep               = "|" // base64(nonce)|base64(ciphertext)
)

var (
	masterKey     []byte
	masterKeyOnce sync.Once
	loadErr       error
	mu            sync.RWMutex
)

// ErrInvalidFormat indica un valor que no es base64(nonce)|base64(ciphertext).
var ErrInvalidFormat = errors.New("secretbox: expected base64(nonce)|base64(ciphertext)")

func ensureLoaded() error {
	masterKeyOnce.Do(func() {
		kb64 := strings.TrimSpace(os.Getenv(EnvVar))
		if kb64 == "" {
			loadErr = fmt.Errorf("%s not set; generate one with: openssl rand -base64 32", EnvVar)
			return
		}
		k, err := base64.StdEncoding.DecodeString(kb64)
		if err != nil {
			loadErr = fmt.Errorf("decode %s: %w", EnvVar, err)
			return
		}
		if len(k) != requiredKeyLength {
			loadErr = fmt.Errorf("%s must decode to %d bytes, got %d", EnvVar, requiredKeyLength, len(k))
			return
		}
		mu.Lock()
		masterKey = k
		mu.Unlock()
	})
	return loadErr
}

func key() []byte {
	mu.RLock()
	defer mu.RUnlock()
	k := make([]byte, len(masterKey))
	copy(k, masterKey)
	return k
}

func gcm() (cipher.AEAD, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key())
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt cifra plainText y devuelve base64(nonce)|base64(ciphertext).
func Encrypt(plainText string) (string, error) {
	aead, err := gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := aead.Seal(nil, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt recibe base64(nonce)|base64(ciphertext) y devuelve el texto plano.
func Decrypt(cipherText string) (string, error) {
	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", ErrInvalidFormat
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("invalid nonce: want %d bytes, got %d", nonceSizeGCM, len(nonce))
	}
	aead, err := gcm()
	if err != nil {
		return "", err
	}
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// Reveal devuelve v tal cual si no tiene el prefijo "enc:", o descifrado si lo tiene.
func Reveal(v string) (string, error) {
	if !strings.HasPrefix(v, Prefix) {
		return v, nil
	}
	return Decrypt(strings.TrimPrefix(v, Prefix))
}

// Seal cifra v y le agrega el prefijo "enc:".
func Seal(v string) (string, error) {
	ct, err := Encrypt(v)
	if err != nil {
		return "", err
	}
	return Prefix + ct, nil
}

// UnsafeResetForTests borra el estado interno. Usar sólo en tests.
func UnsafeResetForTests() {
	mu.Lock()
	masterKey = nil
	mu.Unlock()
	masterKeyOnce = sync.Once{}
	loadErr = nil
}
