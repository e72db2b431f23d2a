// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package config

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestNewCredentialEncryptor(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr error
	}{
		{"valid secret", "endpoint-credential-secret", nil},
		{"empty secret", "", ErrEmptySecret},
		{"one byte", "x", nil},
		{"long secret", strings.Repeat("a", 1000), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewCredentialEncryptor(tt.secret)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if err == nil && enc == nil {
				t.Fatal("nil encryptor without error")
			}
		})
	}
}

func TestCredentialEncryptorRoundTrip(t *testing.T) {
	enc, err := NewCredentialEncryptor("endpoint-credential-secret")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor failed: %v", err)
	}

	for _, plain := range []string{"secret", "p@ss wörd", strings.Repeat("z", 4096)} {
		sealed, err := enc.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if strings.Contains(sealed, plain) {
			t.Error("ciphertext leaks plaintext")
		}
		got, err := enc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if got != plain {
			t.Errorf("round trip = %q, want %q", got, plain)
		}
	}

	a, _ := enc.Encrypt("secret")
	b, _ := enc.Encrypt("secret")
	if a == b {
		t.Error("equal plaintexts must produce different ciphertexts")
	}
	if err := enc.ValidateEncryptionSetup(); err != nil {
		t.Errorf("ValidateEncryptionSetup: %v", err)
	}
}

func TestCredentialEncryptorErrors(t *testing.T) {
	enc, _ := NewCredentialEncryptor("endpoint-credential-secret")
	other, _ := NewCredentialEncryptor("another-secret")
	sealed, _ := enc.Encrypt("secret")

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := enc.Encrypt(""); !errors.Is(err, ErrEmptyPlaintext) {
		t.Errorf("empty plaintext: %v", err)
	}

	tests := []struct {
		name    string
		input   string
		dec     *CredentialEncryptor
		wantErr error
	}{
		{"empty", "", enc, ErrEmptyCiphertext},
		{"not base64", "%%%", enc, ErrInvalidCiphertext},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short")), enc, ErrCiphertextTooShort},
		{"tampered", tampered, enc, ErrDecryptionFailed},
		{"wrong key", sealed, other, ErrDecryptionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.dec.Decrypt(tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMaskCredential(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"abc", "****"},
		{"abcd", "****"},
		{"secret-pw", "****...t-pw"},
	}
	for _, tt := range tests {
		if got := MaskCredential(tt.in); got != tt.want {
			t.Errorf("MaskCredential(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
