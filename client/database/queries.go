package database

import (
	"context"
	"fmt"

	"github.com/JRI98/smartchat/internal/identity"
	"github.com/JRI98/smartchat/internal/sealbox"
	"github.com/JRI98/smartchat/internal/wallet"
)

func (database *Database) CreatePassword(ctx context.Context, salt []byte) error {
	_, err := database.conn.ExecContext(ctx, `INSERT INTO password (id, salt) VALUES (0, ?)`, salt)
	return err
}

// GetPassword returns the password salt, or sql.ErrNoRows before the first
// unlock.
func (database *Database) GetPassword(ctx context.Context) ([]byte, error) {
	var salt []byte
	err := database.conn.QueryRowContext(ctx, `SELECT salt FROM password WHERE id = 0`).Scan(&salt)
	return salt, err
}

func (database *Database) SaveWallet(ctx context.Context, w *wallet.Wallet) error {
	privateKey, err := sealbox.Seal(w.PrivateKey(), database.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt private key: %w", err)
	}

	_, err = database.conn.ExecContext(ctx,
		`INSERT INTO wallet (id, encrypted_private_key) VALUES (0, ?)
		ON CONFLICT (id) DO UPDATE SET encrypted_private_key = excluded.encrypted_private_key`,
		privateKey)
	if err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}

	return nil
}

// GetWallet returns the stored wallet, or sql.ErrNoRows if none was saved.
// A wrong encryption key fails with sealbox.ErrMalformed.
func (database *Database) GetWallet(ctx context.Context) (*wallet.Wallet, error) {
	var encryptedPrivateKey []byte
	err := database.conn.QueryRowContext(ctx, `SELECT encrypted_private_key FROM wallet WHERE id = 0`).Scan(&encryptedPrivateKey)
	if err != nil {
		return nil, err
	}

	privateKey, err := sealbox.Open(encryptedPrivateKey, database.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}

	return wallet.FromPrivateKey(privateKey)
}

func (database *Database) SetContact(ctx context.Context, id identity.Identity, name string) error {
	encryptedName, err := sealbox.Seal([]byte(name), database.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt name: %w", err)
	}

	_, err = database.conn.ExecContext(ctx,
		`INSERT INTO contacts (identity, encrypted_name) VALUES (?, ?)
		ON CONFLICT (identity) DO UPDATE SET encrypted_name = excluded.encrypted_name`,
		id.String(), encryptedName)
	if err != nil {
		return fmt.Errorf("failed to set contact: %w", err)
	}

	return nil
}

// SetContacts saves all names or none of them.
func (database *Database) SetContacts(ctx context.Context, names map[identity.Identity]string) error {
	return database.WithTx(func(transaction *Database) error {
		for id, name := range names {
			if err := transaction.SetContact(ctx, id, name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (database *Database) DeleteContact(ctx context.Context, id identity.Identity) error {
	_, err := database.conn.ExecContext(ctx, `DELETE FROM contacts WHERE identity = ?`, id.String())
	return err
}

// GetContacts returns contact names keyed by base58 identity.
func (database *Database) GetContacts(ctx context.Context) (map[string]string, error) {
	rows, err := database.conn.QueryContext(ctx, `SELECT identity, encrypted_name FROM contacts`)
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}
	defer rows.Close()

	contacts := map[string]string{}
	for rows.Next() {
		var (
			address       string
			encryptedName []byte
		)
		if err := rows.Scan(&address, &encryptedName); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}

		name, err := sealbox.Open(encryptedName, database.encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt name: %w", err)
		}

		contacts[address] = string(name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}

	return contacts, nil
}
