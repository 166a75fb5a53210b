// Package credentials manages the lifecycle of input passwords: a literal
// password found in configuration is moved into the secure store and
// replaced by a mask, and a masked password is resolved back from the store
// at run time.
package credentials

// MaskSentinel is the configured password value meaning "use the stored secret"
const MaskSentinel = "<encrypted>"

// PasswordKey is the key name stored secrets are filed under in each realm
const PasswordKey = "password"

// SecretKind tells whether a configured secret is literal or masked
type SecretKind int

const (
	// Literal is a plaintext secret supplied in configuration
	Literal SecretKind = iota
	// UseStored means the secret must be read from the store
	UseStored
)

func (k SecretKind) String() string {
	switch k {
	case Literal:
		return "literal"
	case UseStored:
		return "use_stored"
	default:
		return "unknown"
	}
}

// Secret is a configured password classified once at run start
type Secret struct {
	Kind  SecretKind
	value string
}

// ParseSecret classifies a configured password value
func ParseSecret(configured string) Secret {
	if configured == MaskSentinel {
		return Secret{Kind: UseStored}
	}
	return Secret{Kind: Literal, value: configured}
}

// Value returns the literal secret; it is empty for UseStored
func (s Secret) Value() string {
	return s.value
}

// String never reveals the secret
func (s Secret) String() string {
	if s.Kind == UseStored {
		return MaskSentinel
	}
	return "<literal>"
}
