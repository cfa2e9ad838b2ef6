// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"testing"

	"github.com/spf13/viper"
)

func TestGetConfiguredDevice(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	id, err := getConfiguredDevice()
	if err != nil {
		t.Fatalf("default lookup failed: %v", err)
	}
	if id != defaultIdentity {
		t.Errorf("no config decoded to %+v; want the default identity", id)
	}

	viper.Set("device", map[string]interface{}{
		"vendorId":     0x1d6b,
		"productId":    0x0104,
		"bcdDevice":    0x0100,
		"manufacturer": "Acme",
		"product":      "Widget",
		"serialNumber": "0001",
	})
	id, err = getConfiguredDevice()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if id.VendorID != 0x1d6b || id.ProductID != 0x0104 {
		t.Errorf("ids decoded to %04x:%04x", id.VendorID, id.ProductID)
	}
	if id.Manufacturer != "Acme" || id.Product != "Widget" || id.SerialNumber != "0001" {
		t.Errorf("strings decoded to %+v", id)
	}

	viper.Set("device", "not a map")
	if _, err := getConfiguredDevice(); err == nil {
		t.Error("malformed device block decoded without error")
	}
}
