package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving the sealing key from machine key material.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
)

// keyDerivationLabel salts the argon2id derivation so the same machine
// secret produces a key unique to this store format.
const keyDerivationLabel = "resumade.tokenstore.v1"

var (
	machineKeyOnce sync.Once
	machineKey     []byte
	machineKeyPath string = "" // Can be set via SetMachineKeyPath before first use
)

// SetMachineKeyPath configures where to load the machine key material from.
// This must be called before any seal/open operations.
// If not set, the key will be loaded from RESUMADE_MACHINE_KEY environment variable.
func SetMachineKeyPath(path string) {
	machineKeyPath = path
}

// loadMachineKey loads key material and derives a 32-byte AES-256 key from either:
// 1. File specified by machineKeyPath (if set)
// 2. RESUMADE_MACHINE_KEY environment variable
// 3. Generates an ephemeral key for development (NOT for production)
func loadMachineKey() ([]byte, error) {
	var keyMaterial []byte

	// Try loading from file first
	if machineKeyPath != "" {
		data, err := os.ReadFile(machineKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read machine key file: %w", err)
		}
		keyMaterial = data
	} else {
		// Try environment variable
		envKey := os.Getenv("RESUMADE_MACHINE_KEY")
		if envKey != "" {
			keyMaterial = []byte(envKey)
		} else {
			// Development fallback - generate ephemeral key
			// WARNING: sealed tokens won't survive a restart with this
			keyMaterial = make([]byte, 32)
			if _, err := rand.Read(keyMaterial); err != nil {
				return nil, fmt.Errorf("failed to generate ephemeral machine key: %w", err)
			}
		}
	}

	// Derive the sealing key with argon2id under a fixed format label
	salt := sha256.Sum256([]byte(keyDerivationLabel))
	key := argon2.IDKey(keyMaterial, salt[:], argonTime, argonMemory, argonThreads, argonKeyLen)
	return key, nil
}

// getMachineKey returns the derived machine key, loading it on first use.
func getMachineKey() ([]byte, error) {
	var err error
	machineKeyOnce.Do(func() {
		machineKey, err = loadMachineKey()
	})
	if err != nil {
		return nil, err
	}
	if machineKey == nil {
		return nil, fmt.Errorf("machine key unavailable")
	}
	return machineKey, nil
}

// Seal encrypts plaintext using AES-256-GCM under the machine key.
// The output format is: [12-byte nonce][encrypted data][16-byte auth tag]
func Seal(plaintext []byte) ([]byte, error) {
	key, err := getMachineKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get machine key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	// Generate random nonce
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// gcm.Seal appends the ciphertext and auth tag to nonce
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
// Expects format: [12-byte nonce][encrypted data][16-byte auth tag]
func Open(sealed []byte) ([]byte, error) {
	key, err := getMachineKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get machine key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	return plaintext, nil
}

// ResetMachineKeyForTesting resets the machine key singleton for testing purposes.
// This should ONLY be used in tests.
func ResetMachineKeyForTesting() {
	machineKeyOnce = sync.Once{}
	machineKey = nil
	machineKeyPath = ""
}
