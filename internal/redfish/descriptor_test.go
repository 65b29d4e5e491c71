package redfish

import (
	"testing"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestDescriptorValidate(t *testing.T) {
	valid := Descriptor{Host: "10.0.0.5", Username: "root", Secret: "calvin"}

	tests := []struct {
		name    string
		mutate  func(d *Descriptor)
		wantErr bool
	}{
		{"valid defaults", func(*Descriptor) {}, false},
		{"missing host", func(d *Descriptor) { d.Host = " " }, true},
		{"missing username", func(d *Descriptor) { d.Username = "" }, true},
		{"missing secret", func(d *Descriptor) { d.Secret = "" }, true},
		{"port too large", func(d *Descriptor) { d.Port = 70000 }, true},
		{"bad scheme", func(d *Descriptor) { d.Scheme = "ftp" }, true},
		{"http scheme", func(d *Descriptor) { d.Scheme = "HTTP" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, ErrInvalidDescriptor), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDescriptorBaseURL(t *testing.T) {
	assert.Equal(t, "https://bmc1:443", Descriptor{Host: "bmc1"}.BaseURL())
	assert.Equal(t, "http://bmc1:80", Descriptor{Host: "bmc1", Scheme: "http"}.BaseURL())
	assert.Equal(t, "https://[fe80::1]:8443", Descriptor{Host: "fe80::1", Port: 8443}.BaseURL())
}

func TestDescriptorStringHidesSecret(t *testing.T) {
	d := Descriptor{ID: "r640", Host: "bmc1", Username: "root", Secret: "hunter2"}

	assert.NotContains(t, d.String(), "hunter2")
	assert.Equal(t, "r640", d.Name())
	assert.Equal(t, "bmc1", Descriptor{Host: "bmc1"}.Name())
}
