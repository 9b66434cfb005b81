package otp

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Sentinel is the variable value that asks for a freshly generated code.
const Sentinel = "{otp_code}"

// VariableName is the template variable carrying the one-time code.
const VariableName = "otp_code"

// Generator produces numeric one-time codes. Each call derives a code from a
// new random TOTP secret, so codes are never reused across sends.
type Generator struct {
	issuer string
	digits otp.Digits
	now    func() time.Time
}

// NewGenerator creates a generator issuing six digit codes.
func NewGenerator(issuer string) *Generator {
	return &Generator{
		issuer: issuer,
		digits: otp.DigitsSix,
		now:    time.Now,
	}
}

// Generate returns a new code bound to account (usually the recipient).
func (g *Generator) Generate(account string) (string, error) {
	if account == "" {
		account = "anonymous"
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.issuer,
		AccountName: account,
		Digits:      g.digits,
	})
	if err != nil {
		return "", fmt.Errorf("generate otp secret: %w", err)
	}

	code, err := totp.GenerateCodeCustom(key.Secret(), g.now(), totp.ValidateOpts{
		Period:    30,
		Digits:    g.digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}
	return code, nil
}

// Prepare returns vars with the otp_code sentinel replaced by a fresh code.
// The input map is not modified. Any other otp_code value is passed through.
func (g *Generator) Prepare(vars map[string]string, account string) (map[string]string, error) {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}

	if out[VariableName] != Sentinel {
		return out, nil
	}

	code, err := g.Generate(account)
	if err != nil {
		return nil, err
	}
	out[VariableName] = code
	return out, nil
}
