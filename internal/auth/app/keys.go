package app

import (
	"fmt"
	"log/slog"

	"github.com/TimurCravtov/CraftHub/pkg/cryptox"
	"github.com/TimurCravtov/CraftHub/pkg/jwtx"
)

// Keys holds the process-wide secret material. Every value is immutable
// after InitKeys returns and is handed to constructors explicitly.
type Keys struct {
	Signer *jwtx.HMAC
	Codec  *cryptox.FieldCodec
	Hasher *cryptox.PasswordHasher
}

// InitKeys builds the token signer and field codec from the configured
// secrets, and loads (or creates) the password pepper.
func InitKeys(cfg Config, logger *slog.Logger) (Keys, error) {
	signer, err := jwtx.NewHMAC([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		return Keys{}, fmt.Errorf("failed to initialize token signer: %w", err)
	}

	codec, err := cryptox.NewFieldCodec([]byte(cfg.TFAEncryptionKey))
	if err != nil {
		return Keys{}, fmt.Errorf("failed to initialize field codec: %w", err)
	}

	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
	if err != nil {
		return Keys{}, fmt.Errorf("failed to load pepper: %w", err)
	}
	logger.Info("key material loaded", "issuer", cfg.JWTIssuer, "pepper_file", cfg.PepperFile)

	return Keys{
		Signer: signer,
		Codec:  codec,
		Hasher: cryptox.NewPasswordHasher(pepper),
	}, nil
}

// GenerateSecrets returns fresh values for JWT_SECRET and TFA_ENCRYPTION_KEY.
// The encryption key is 24 random bytes, base64url encoded to exactly 32
// characters so it can be used as an AES-256 key as-is.
func GenerateSecrets() (jwtSecret, tfaKey string, err error) {
	jwtSecret, err = cryptox.GenerateToken(48)
	if err != nil {
		return "", "", err
	}
	tfaKey, err = cryptox.GenerateToken(24)
	if err != nil {
		return "", "", err
	}
	return jwtSecret, tfaKey, nil
}
