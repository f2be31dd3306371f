package provision

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/mind-engage/schooltests/internal/apierr"
	"github.com/mind-engage/schooltests/internal/db"
)

var ErrRevealNotFound = apierr.New(apierr.KindNotFound, "reveal_not_found", "this credential link was already used or has expired")

// Credential is what a one-time reveal hands back.
type Credential struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Vault keeps generated passwords sealed until they are revealed once.
// Only a hash of the reveal token is stored.
type Vault struct {
	db  *sql.DB
	key [32]byte
	ttl time.Duration
	now func() time.Time
}

func NewVault(h *sql.DB, secret string, ttl time.Duration) *Vault {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Vault{db: h, key: sha256.Sum256([]byte(secret)), ttl: ttl, now: time.Now}
}

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Seal stores the password and returns the reveal token.
func (v *Vault) Seal(ctx context.Context, userID, email, schoolID, password string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(password), &nonce, &v.key)

	now := v.now()
	_, err := v.db.ExecContext(ctx,
		`INSERT INTO credential_reveals (id, user_id, email, school_id, token_hash, sealed, created_at, expires_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		uuid.NewString(), userID, email, schoolID, tokenHash(token),
		base64.StdEncoding.EncodeToString(box), now.Unix(), now.Add(v.ttl).Unix())
	if err != nil {
		return "", err
	}
	return token, nil
}

// Reveal opens and deletes the record in one transaction.
func (v *Vault) Reveal(ctx context.Context, token string) (Credential, error) {
	var (
		c      Credential
		sealed string
	)
	err := db.InTx(ctx, v.db, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT id, user_id, email, sealed FROM credential_reveals WHERE token_hash=$1 AND expires_at > $2`,
			tokenHash(token), v.now().Unix()).Scan(&id, &c.UserID, &c.Email, &sealed)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRevealNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM credential_reveals WHERE id=$1`, id)
		return err
	})
	if err != nil {
		return Credential{}, err
	}
	box, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(box) < 24 {
		return Credential{}, ErrRevealNotFound
	}
	var nonce [24]byte
	copy(nonce[:], box[:24])
	pw, ok := secretbox.Open(nil, box[24:], &nonce, &v.key)
	if !ok {
		return Credential{}, ErrRevealNotFound
	}
	c.Password = string(pw)
	return c, nil
}

func (v *Vault) DeleteForUser(ctx context.Context, userID string) error {
	_, err := v.db.ExecContext(ctx, `DELETE FROM credential_reveals WHERE user_id=$1`, userID)
	return err
}

// Purge drops expired records.
func (v *Vault) Purge(ctx context.Context) (int64, error) {
	res, err := v.db.ExecContext(ctx, `DELETE FROM credential_reveals WHERE expires_at <= $1`, v.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
