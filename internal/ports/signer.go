package ports

import "crypto/rsa"

// KeyProviderPort supplies the process-wide signing key.
type KeyProviderPort interface {
	PrivateKey() (*rsa.PrivateKey, error)
}

// SignerPort signs source archive bytes.
type SignerPort interface {
	Sign(data []byte) (string, error)
}

// KeyGeneratorPort provisions a new signing keypair on disk.
type KeyGeneratorPort interface {
	// Generate writes the private and public key files. When recipients
	// are given the private key is age-encrypted to them.
	Generate(privatePath string, publicPath string, recipients []string) error
}
