// Package sealer abstracts the end-to-end payload encryption owned by the
// transport layer. The protocol engine only decides *whether* a payload is
// sealed; the cipher itself belongs to the gossip transport's key scheme.
package sealer

// Sealer encrypts payloads to a counterparty identity and decrypts payloads
// addressed to the local identity.
type Sealer interface {
	Encrypt(plaintext, recipientKey string) (string, error)
	Decrypt(ciphertext, senderKey string) (string, error)
}

// Passthrough is a Sealer that leaves payloads unchanged, for tests and
// devstack runs where the transport terminates encryption elsewhere.
type Passthrough struct{}

func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func (Passthrough) Encrypt(plaintext, recipientKey string) (string, error) {
	return plaintext, nil
}

func (Passthrough) Decrypt(ciphertext, senderKey string) (string, error) {
	return ciphertext, nil
}

// compile-time interface check
var _ Sealer = (*Passthrough)(nil)
