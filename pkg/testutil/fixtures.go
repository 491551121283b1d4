package testutil

import (
	"garagedata/pkg/domain"
)

// TestRegistrations are normalized registrations for deterministic test data.
var TestRegistrations = struct {
	Fiesta  domain.Registration
	Golf    domain.Registration
	Unknown domain.Registration
}{
	Fiesta:  domain.Registration("AB12CDE"),
	Golf:    domain.Registration("GF19XYZ"),
	Unknown: domain.Registration("ZZ00ZZZ"),
}

// MustRegistration parses raw or panics. For table-driven tests only.
func MustRegistration(raw string) domain.Registration {
	reg, err := domain.ParseRegistration(raw)
	if err != nil {
		panic(err)
	}
	return reg
}

// JPEGBytes is a minimal JPEG header, enough for content sniffing.
var JPEGBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

// PNGBytes is a minimal PNG signature.
var PNGBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
