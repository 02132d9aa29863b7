package adapters

import (
	"bytes"
	"crypto/rsa"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"

	"vorpal/internal/ports"
	"vorpal/internal/shared"
	"vorpal/internal/signing"
)

const ageHeaderPrefix = "age-encryption.org/"

// FileKeyProvider loads the signing key from a PEM file once per process.
// The file may be age-encrypted, in which case an identity file is
// required to decrypt it.
type FileKeyProvider struct {
	privatePath  string
	identityPath string

	once sync.Once
	key  *rsa.PrivateKey
	err  error
}

func NewFileKeyProvider(privatePath string, identityPath string) *FileKeyProvider {
	return &FileKeyProvider{privatePath: privatePath, identityPath: identityPath}
}

func (p *FileKeyProvider) PrivateKey() (*rsa.PrivateKey, error) {
	p.once.Do(func() {
		p.key, p.err = p.load()
	})
	return p.key, p.err
}

func (p *FileKeyProvider) load() (*rsa.PrivateKey, error) {
	if strings.TrimSpace(p.privatePath) == "" {
		return nil, keyUnavailable("private key path is empty", nil)
	}
	data, err := os.ReadFile(p.privatePath)
	if err != nil {
		return nil, keyUnavailable("failed to read private key "+p.privatePath, err)
	}
	if bytes.HasPrefix(data, []byte(ageHeaderPrefix)) {
		data, err = p.decrypt(data)
		if err != nil {
			return nil, err
		}
	}
	key, err := signing.ParsePrivateKey(data)
	if err != nil {
		return nil, keyUnavailable("failed to parse private key "+p.privatePath, err)
	}
	return key, nil
}

func (p *FileKeyProvider) decrypt(ciphertext []byte) ([]byte, error) {
	if strings.TrimSpace(p.identityPath) == "" {
		return nil, keyUnavailable("private key is age-encrypted but no identity file is configured", nil)
	}
	f, err := os.Open(p.identityPath)
	if err != nil {
		return nil, keyUnavailable("failed to open age identity "+p.identityPath, err)
	}
	defer f.Close()
	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, keyUnavailable("failed to parse age identity "+p.identityPath, err)
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, keyUnavailable("failed to decrypt private key", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, keyUnavailable("failed to read decrypted private key", err)
	}
	return plaintext, nil
}

// RSASigner produces RSA-PSS signatures with the provider's key.
type RSASigner struct {
	keys ports.KeyProviderPort
}

func NewRSASigner(keys ports.KeyProviderPort) RSASigner {
	return RSASigner{keys: keys}
}

func (s RSASigner) Sign(data []byte) (string, error) {
	key, err := s.keys.PrivateKey()
	if err != nil {
		return "", err
	}
	sig, err := signing.Sign(key, data)
	if err != nil {
		return "", shared.Fail(shared.KindSigningKeyUnavailable, shared.StageSign, "failed to sign source archive", err)
	}
	return sig, nil
}

// KeyFileGenerator writes new keypairs with signing.DefaultKeyBits unless
// Bits is set.
type KeyFileGenerator struct {
	Bits int
}

func NewKeyFileGenerator() KeyFileGenerator {
	return KeyFileGenerator{Bits: signing.DefaultKeyBits}
}

func (g KeyFileGenerator) Generate(privatePath string, publicPath string, recipients []string) error {
	for _, target := range []string{privatePath, publicPath} {
		if _, err := os.Stat(target); err == nil {
			return shared.Fail(shared.KindIO, shared.StageConfig, "refusing to overwrite existing key "+target, fs.ErrExist)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return shared.Fail(shared.KindIO, shared.StageConfig, "failed to stat "+target, err)
		}
	}
	key, err := signing.GenerateKey(g.Bits)
	if err != nil {
		return shared.Fail(shared.KindIO, shared.StageConfig, "failed to generate signing key", err)
	}
	privatePEM, err := signing.EncodePrivateKey(key)
	if err != nil {
		return shared.Fail(shared.KindIO, shared.StageConfig, "failed to encode private key", err)
	}
	publicPEM, err := signing.EncodePublicKey(&key.PublicKey)
	if err != nil {
		return shared.Fail(shared.KindIO, shared.StageConfig, "failed to encode public key", err)
	}
	if len(recipients) > 0 {
		privatePEM, err = encryptTo(privatePEM, recipients)
		if err != nil {
			return err
		}
	}
	if err := writeNewFile(privatePath, privatePEM, 0o600); err != nil {
		return err
	}
	return writeNewFile(publicPath, publicPEM, 0o644)
}

func encryptTo(plaintext []byte, recipientKeys []string) ([]byte, error) {
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, value := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(value))
		if err != nil {
			return nil, shared.Fail(shared.KindIO, shared.StageConfig, "invalid age recipient "+value, err)
		}
		recipients = append(recipients, recipient)
	}
	var buf bytes.Buffer
	writer, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return nil, shared.Fail(shared.KindIO, shared.StageConfig, "failed to create age encryptor", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, shared.Fail(shared.KindIO, shared.StageConfig, "failed to encrypt private key", err)
	}
	if err := writer.Close(); err != nil {
		return nil, shared.Fail(shared.KindIO, shared.StageConfig, "failed to finalize private key encryption", err)
	}
	return buf.Bytes(), nil
}

func writeNewFile(target string, data []byte, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return shared.Fail(shared.KindIO, shared.StageConfig, "failed to create key directory", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return shared.Fail(shared.KindIO, shared.StageConfig, "failed to create "+target, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return shared.Fail(shared.KindIO, shared.StageConfig, "failed to write "+target, err)
	}
	return f.Close()
}

func keyUnavailable(msg string, cause error) error {
	return shared.Fail(shared.KindSigningKeyUnavailable, shared.StageSign, msg, cause)
}

var (
	_ ports.KeyProviderPort  = (*FileKeyProvider)(nil)
	_ ports.SignerPort       = RSASigner{}
	_ ports.KeyGeneratorPort = KeyFileGenerator{}
)
