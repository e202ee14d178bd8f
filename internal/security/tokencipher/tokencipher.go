// Package tokencipher envuelve el bearer token con AES-256-GCM antes de persistirlo.
//
// La clave se deriva con PBKDF2 (SHA-256, 10k iteraciones) de una passphrase y
// un salt fijos en el código. Esto es ofuscación, no confidencialidad: quien
// tenga el binario puede derivar la misma clave. La clave no depende del
// entorno a propósito, para que un token guardado siga siendo legible si
// cambian hostname, usuario o terminal.
//
// Asimetría intencional:
//   - Encrypt falla abierto: ante un error criptográfico devuelve el texto plano.
//   - Decrypt falla cerrado: un blob que parece cifrado pero no abre devuelve ok=false
//     y el llamador decide (normalmente, forzar logout).
package tokencipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dropDatabas3/portal/internal/observability/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
)

const (
	defaultPassphrase = "portal::session-token::v1"
	defaultSalt       = "portal-static-salt-2024"
	iterations        = 10000
	keyLength         = 32 // AES-256
	nonceSize         = 12 // nonce GCM recomendado (96 bits)
	minEncryptedLen   = 20 // bytes decodificados para considerar "parece cifrado"
)

var errEmptyKey = errors.New("tokencipher: derived key is empty")

// DeriveKey aplica PBKDF2-SHA256 sobre passphrase/salt.
func DeriveKey(passphrase, salt string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(salt), iterations, keyLength, sha256.New)
}

// KeyProvider memoiza la clave derivada. Es compartido por todo el proceso;
// logout llama Invalidate para que el próximo login derive de nuevo.
type KeyProvider struct {
	mu          sync.Mutex
	passphrase  string
	salt        string
	key         []byte
	derivations int
}

// NewKeyProvider usa la passphrase y el salt fijos del paquete.
func NewKeyProvider() *KeyProvider {
	return NewKeyProviderFrom(defaultPassphrase, defaultSalt)
}

// NewKeyProviderFrom permite otra passphrase (tests, migraciones de formato).
func NewKeyProviderFrom(passphrase, salt string) *KeyProvider {
	return &KeyProvider{passphrase: passphrase, salt: salt}
}

// Key devuelve la clave, derivándola la primera vez.
func (p *KeyProvider) Key() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.key == nil {
		p.key = DeriveKey(p.passphrase, p.salt)
		p.derivations++
	}
	if len(p.key) != keyLength {
		return nil, errEmptyKey
	}
	out := make([]byte, len(p.key))
	copy(out, p.key)
	return out, nil
}

// Invalidate descarta la clave memoizada.
func (p *KeyProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.key {
		p.key[i] = 0
	}
	p.key = nil
}

// Derivations cuenta cuántas veces se derivó la clave.
func (p *KeyProvider) Derivations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.derivations
}

// Cipher cifra/descifra tokens con la clave del KeyProvider.
type Cipher struct {
	keys   *KeyProvider
	random io.Reader
	log    *zap.Logger
}

// Option configura un Cipher.
type Option func(*Cipher)

// WithKeyProvider reemplaza el proveedor de clave por defecto.
func WithKeyProvider(p *KeyProvider) Option {
	return func(c *Cipher) { c.keys = p }
}

// WithRandom reemplaza la fuente de nonces (tests).
func WithRandom(r io.Reader) Option {
	return func(c *Cipher) { c.random = r }
}

// WithLogger setea el logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cipher) { c.log = l }
}

// New crea un Cipher con la clave fija del paquete.
func New(opts ...Option) *Cipher {
	c := &Cipher{random: rand.Reader}
	for _, o := range opts {
		o(c)
	}
	if c.keys == nil {
		c.keys = NewKeyProvider()
	}
	c.log = logger.Or(c.log, "tokencipher")
	return c
}

// Keys expone el proveedor de clave (para invalidarlo en logout).
func (c *Cipher) Keys() *KeyProvider { return c.keys }

// Invalidate descarta la clave memoizada.
func (c *Cipher) Invalidate() { c.keys.Invalidate() }

// Encrypt devuelve base64(nonce‖ciphertext). Nunca falla hacia afuera: ante
// cualquier error devuelve plaintext sin cambios.
func (c *Cipher) Encrypt(plaintext string) string {
	if plaintext == "" {
		return ""
	}
	blob, err := c.seal(plaintext)
	if err != nil {
		c.log.Warn("token encryption failed, storing plaintext", logger.Err(err))
		return plaintext
	}
	return blob
}

func (c *Cipher) seal(plaintext string) (string, error) {
	aead, err := c.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt devuelve el token en claro.
//
// Si blob no parece cifrado (token legado previo al cifrado) se devuelve tal
// cual con ok=true. Si parece cifrado y no abre (otra clave, corrupción)
// devuelve ok=false: resultado indeterminado, el llamador elige el fallback.
func (c *Cipher) Decrypt(blob string) (plaintext string, ok bool) {
	raw, encrypted := decodeIfEncrypted(blob)
	if !encrypted {
		return blob, true
	}
	pt, err := c.open(raw)
	if err != nil {
		c.log.Debug("token decryption failed", logger.Err(err))
		return "", false
	}
	return pt, true
}

func (c *Cipher) open(raw []byte) (string, error) {
	if len(raw) < nonceSize {
		return "", errors.New("blob shorter than nonce")
	}
	aead, err := c.aead()
	if err != nil {
		return "", err
	}
	pt, err := aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

func (c *Cipher) aead() (cipher.AEAD, error) {
	key, err := c.keys.Key()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return aead, nil
}

// LooksEncrypted aplica la heurística: base64 válido que decodifica a más de 20 bytes.
func LooksEncrypted(s string) bool {
	_, ok := decodeIfEncrypted(s)
	return ok
}

func decodeIfEncrypted(s string) ([]byte, bool) {
	if s == "" {
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) <= minEncryptedLen {
		return nil, false
	}
	return raw, true
}
