package crypto

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, AddressLength)
	addr := NewAddress(ParticipantPrefix, raw)
	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != ParticipantPrefix {
		t.Fatalf("prefix: got %q", decoded.Prefix())
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("bytes mismatch")
	}
	if !decoded.Equal(addr) {
		t.Fatalf("expected addresses to be equal")
	}
}

func TestDecodeAddressWithPrefixRejectsMismatch(t *testing.T) {
	addr := NewAddress(PoolPrefix, bytes.Repeat([]byte{0x01}, AddressLength))
	if _, err := DecodeAddressWithPrefix(addr.String(), ParticipantPrefix); err == nil {
		t.Fatalf("expected prefix mismatch error")
	}
	if _, err := DecodeAddressWithPrefix(addr.String(), PoolPrefix); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeriveAddressDeterministic(t *testing.T) {
	a := DeriveAddress(VaultPrefix, []byte("reward_vault"), []byte("pool-1"))
	b := DeriveAddress(VaultPrefix, []byte("reward_vault"), []byte("pool-1"))
	c := DeriveAddress(VaultPrefix, []byte("principal_vault"), []byte("pool-1"))
	if !a.Equal(b) {
		t.Fatalf("derivation not deterministic")
	}
	if a.Equal(c) {
		t.Fatalf("different seeds produced the same address")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "participant.json")
	if err := SaveToKeystore(path, key, "passphrase"); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "passphrase")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.PubKey().Address().Equal(key.PubKey().Address()) {
		t.Fatalf("loaded key controls a different address")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
