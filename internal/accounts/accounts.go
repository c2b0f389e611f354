package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/example/court-scheduler/internal/crypto"
	"github.com/example/court-scheduler/internal/db"
)

// Account is a set of booking-service credentials stored under a name.
type Account struct {
	Name      string
	Token     string
	OpenID    string
	SendKey   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repo stores accounts with every secret sealed by the AEAD. The account name is bound as
// additional data, so a ciphertext copied to another row does not decrypt.
type Repo struct {
	db   *db.DB
	aead *crypto.AEAD
}

func NewRepo(d *db.DB, a *crypto.AEAD) *Repo { return &Repo{db: d, aead: a} }

// Save inserts or replaces the account.
func (r *Repo) Save(ctx context.Context, a Account) error {
	enc := make([]string, 0, 3)
	for _, v := range []string{a.Token, a.OpenID, a.SendKey} {
		ct, err := r.aead.EncryptToString(v, a.Name)
		if err != nil {
			return err
		}
		enc = append(enc, ct)
	}
	return r.db.Exec(ctx, `
INSERT INTO accounts(name, token_enc, open_id_enc, send_key_enc)
VALUES ($1,$2,$3,$4)
ON CONFLICT (name) DO UPDATE
SET token_enc=EXCLUDED.token_enc, open_id_enc=EXCLUDED.open_id_enc, send_key_enc=EXCLUDED.send_key_enc, updated_at=now()`,
		a.Name, enc[0], enc[1], enc[2])
}

// Get loads and decrypts an account. A missing name yields internaltypes.ErrNotFound.
func (r *Repo) Get(ctx context.Context, name string) (Account, error) {
	var (
		a                 = Account{Name: name}
		tok, oid, sendKey string
	)
	err := r.db.QueryRow(ctx, `
SELECT token_enc, open_id_enc, send_key_enc, created_at, updated_at
FROM accounts WHERE name=$1`, name).Scan(&tok, &oid, &sendKey, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, db.WrapNotFound(err)
	}
	for _, p := range []struct {
		ct  string
		dst *string
	}{{tok, &a.Token}, {oid, &a.OpenID}, {sendKey, &a.SendKey}} {
		if *p.dst, err = r.aead.DecryptString(p.ct, name); err != nil {
			return Account{}, err
		}
	}
	return a, nil
}

// Names lists stored account names.
func (r *Repo) Names(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT name FROM accounts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Mask hides all but the last four characters of a secret for display.
func Mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
