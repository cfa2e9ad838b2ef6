// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"fmt"
	"strings"

	"github.com/MatthiasValvekens/usb-vhci/emulator"
	"github.com/mitchellh/mapstructure"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Descriptor identity served when the config carries no device block.
var defaultIdentity = emulator.Identity{
	VendorID:  0xdead,
	ProductID: 0xbeef,
	BCDDevice: 0x1138,
	Product:   "Hello World!",
}

// initConfig defines config flags, config file, and envs
func initConfig() error {
	cfgFile := flag.String("config", "", "Path to the config file.")
	flag.Int("ports", 1, "Number of root-hub ports to register on the virtual controller.")
	flag.String("log-level", logLevelInfo, fmt.Sprintf("Log level to use. Possible values: %s", availableLogLevels))
	flag.String("listen", ":8080", "The address at which to listen for health and metrics.")

	flag.Parse()
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}

	if *cfgFile != "" {
		viper.SetConfigFile(*cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/usb-vhci/")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error
		} else {
			// Config file was found but another error was produced
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

func getConfiguredDevice() (emulator.Identity, error) {
	raw := viper.Get("device")
	if raw == nil {
		return defaultIdentity, nil
	}

	var identity emulator.Identity
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &identity,
		TagName: "json",
	})
	if err != nil {
		return emulator.Identity{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return emulator.Identity{}, fmt.Errorf("failed to decode device data %q: %w", raw, err)
	}
	return identity, nil
}
