// Package credentials persists the exchange API key pair the trade panel
// sends along with each order. Values are opaque and stored as-is.
package credentials

import (
	"coinwatch/pkg/storage/kv"

	"github.com/pkg/errors"
)

const (
	ClientIDKey     = "binanceClientId"
	ClientSecretKey = "binanceClientSecret"
)

type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Complete reports whether both values are non-empty.
func (c Credentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type Store struct {
	kv kv.Store
}

func NewStore(store kv.Store) *Store {
	return &Store{kv: store}
}

// Save overwrites both values.
func (s *Store) Save(clientID, clientSecret string) error {
	if err := s.kv.Set(ClientIDKey, clientID); err != nil {
		return errors.Wrap(err, "save client id")
	}
	if err := s.kv.Set(ClientSecretKey, clientSecret); err != nil {
		return errors.Wrap(err, "save client secret")
	}
	return nil
}

// Load returns the saved pair. found is false when nothing was ever saved;
// a value missing on its own comes back empty.
func (s *Store) Load() (creds Credentials, found bool, err error) {
	id, idOK, err := s.kv.Get(ClientIDKey)
	if err != nil {
		return Credentials{}, false, errors.Wrap(err, "load client id")
	}
	secret, secretOK, err := s.kv.Get(ClientSecretKey)
	if err != nil {
		return Credentials{}, false, errors.Wrap(err, "load client secret")
	}
	return Credentials{ClientID: id, ClientSecret: secret}, idOK || secretOK, nil
}

// Credentials implements trade.CredentialSource.
func (s *Store) Credentials() (Credentials, error) {
	creds, _, err := s.Load()
	return creds, err
}
