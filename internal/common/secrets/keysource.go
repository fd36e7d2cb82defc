package secrets

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

// LoadDBSecretKey resolves PROC_HANDLER_DB_SECRET_KEY. Three supported
// shapes, tried in order:
//  1. a 64-char hex string: used as the raw 32-byte key directly.
//  2. "awssm://<secret-id>": fetched from AWS Secrets Manager at startup,
//     then treated as one of the other two shapes.
//  3. anything else: treated as a passphrase and stretched to 32 bytes
//     with PBKDF2-HMAC-SHA256 (salted with the fixed, documented salt
//     below — the key is process-wide and never rotated without a full
//     re-encryption pass, so a fixed salt does not weaken it further).
func LoadDBSecretKey(raw string) ([]byte, error) {
	if len(raw) > len("awssm://") && raw[:len("awssm://")] == "awssm://" {
		resolved, err := fetchFromSecretsManager(raw[len("awssm://"):])
		if err != nil {
			return nil, errors.Wrap(err, "fetching db secret key from secrets manager")
		}
		raw = resolved
	}
	if len(raw) == 64 {
		if key, err := hex.DecodeString(raw); err == nil {
			return key, nil
		}
	}
	return pbkdf2.Key([]byte(raw), []byte("procnet-custodian-db-secret-key-v1"), 100000, 32, sha256.New), nil
}

func fetchFromSecretsManager(secretID string) (string, error) {
	sess, err := session.NewSession(aws.NewConfig())
	if err != nil {
		return "", err
	}
	svc := secretsmanager.New(sess)
	out, err := svc.GetSecretValue(&secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
	if err != nil {
		return "", err
	}
	if out.SecretString == nil {
		return "", errors.Errorf("secret %s has no string value", secretID)
	}
	return *out.SecretString, nil
}
