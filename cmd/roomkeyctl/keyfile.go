package main

import (
	"encoding/json"
	"os"

	"github.com/tos-network/roomcore/cryptoutil"
)

// keyfile is the on-disk JSON shape of a generated server signing key.
type keyfile struct {
	ServerName string `json:"server_name"`
	KeyID      string `json:"key_id"`
	PublicKey  string `json:"public_key"`  // base64
	PrivateKey string `json:"private_key"` // base64
}

func loadKeyfile(path string) (*keyfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kf keyfile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, err
	}
	return &kf, nil
}

func (kf *keyfile) privateKey() (cryptoutil.PrivateKey, error) {
	return cryptoutil.B64Decode(kf.PrivateKey)
}

func (kf *keyfile) publicKey() (cryptoutil.PublicKey, error) {
	b, err := cryptoutil.B64Decode(kf.PublicKey)
	if err != nil {
		return nil, err
	}
	return cryptoutil.PublicKey(b), nil
}

func writeKeyfile(path string, kf *keyfile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
