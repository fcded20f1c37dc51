package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"hourlog/internal/model"
	"hourlog/internal/store"
)

// ErrBadCredentials hides whether the username or the password was wrong.
var ErrBadCredentials = errors.New("auth: invalid username or password")

// Operators checks passwords against the users table.
type Operators struct {
	store *store.RecordStore
	cost  int
}

// NewOperators uses bcrypt.DefaultCost.
func NewOperators(s *store.RecordStore) *Operators {
	return &Operators{store: s, cost: bcrypt.DefaultCost}
}

// Authenticate returns the operator when the password matches its hash.
func (o *Operators) Authenticate(ctx context.Context, username, password string) (model.Operator, error) {
	username = strings.TrimSpace(username)
	rows, err := o.store.Load(ctx, store.Users)
	if err != nil {
		return model.Operator{}, err
	}
	for _, r := range rows {
		op := model.OperatorFromRow(r)
		if op.Username != username {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)) != nil {
			return model.Operator{}, ErrBadCredentials
		}
		return op, nil
	}
	return model.Operator{}, ErrBadCredentials
}

// SetPassword creates the operator or replaces its password.
func (o *Operators) SetPassword(ctx context.Context, username, name, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return errors.New("auth: username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), o.cost)
	if err != nil {
		return err
	}
	return o.store.Update(ctx, func(tx *store.Tx) error {
		rows, err := tx.Rows(store.Users)
		if err != nil {
			return err
		}
		for i, r := range rows {
			op := model.OperatorFromRow(r)
			if op.Username != username {
				continue
			}
			op.PasswordHash = string(hash)
			if name != "" {
				op.Name = name
			}
			rows[i] = op.Row()
			tx.Replace(store.Users, rows)
			return nil
		}
		op := model.Operator{Username: username, PasswordHash: string(hash), Name: name}
		tx.Replace(store.Users, append(rows, op.Row()))
		return nil
	})
}

// EnsureDefault seeds username when the users table is empty. It reports
// whether an operator was created.
func (o *Operators) EnsureDefault(ctx context.Context, username, password string) (bool, error) {
	if password == "" {
		return false, nil
	}
	rows, err := o.store.Load(ctx, store.Users)
	if err != nil {
		return false, err
	}
	if len(rows) > 0 {
		return false, nil
	}
	if err := o.SetPassword(ctx, username, username, password); err != nil {
		return false, err
	}
	return true, nil
}
