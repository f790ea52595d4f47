package network

import (
	"crypto/rand"
	"io/ioutil"
	"os"

	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

// LoadHostKey reads the host key stored at path, or generates one and stores
// it there. If path is empty a new key is generated for this run only.
func LoadHostKey(path string) (crypto.PrivKey, error) {
	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err == nil {
			return crypto.UnmarshalPrivateKey(data)
		}
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "could not read host key")
		}
	}

	logger.Debug("private key not found, generating...")
	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}

	if path == "" {
		return key, nil
	}

	data, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, err
	}
	if err := ioutil.WriteFile(path, data, 0600); err != nil {
		return nil, errors.Wrap(err, "could not write host key")
	}
	return key, nil
}
