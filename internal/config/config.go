// Package config parses the configuration of the order book tooling.
package config

import (
	"os"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/perun-network/perun-did-orderbook/internal/did"
	"github.com/perun-network/perun-did-orderbook/internal/ledger"
	"github.com/perun-network/perun-did-orderbook/internal/order"
	"github.com/perun-network/perun-did-orderbook/internal/validator"
	"github.com/perun-network/perun-did-orderbook/internal/value"
)

// Config represents the parsed config file.
type Config struct {
	LogLevel logrus.Level
	// ContractHash is the script hash of the order book contract.
	ContractHash ledger.CredentialHash
	Issuers      []did.Issuer
	// RequireCancelCredential makes Cancel also require a credential input.
	RequireCancelCredential bool
	// Fee is the fee in lovelace the assembler pays per transaction.
	Fee int64
}

// Parse reads the config file and validates it.
func Parse(file string) (Config, error) {
	cfg := Config{LogLevel: logrus.InfoLevel}

	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return cfg, errors.Wrap(err, "reading config")
	}

	opts := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		parseConfigTypes(),
	))
	if err := v.Unmarshal(&cfg, opts); err != nil {
		return cfg, errors.Wrap(err, "decoding config")
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.ContractHash == "" {
		return errors.New("missing contract hash")
	}
	if c.Fee < 0 {
		return errors.Errorf("negative fee %d", c.Fee)
	}
	_, err := did.NewRegistry(c.Issuers...)
	return errors.WithMessage(err, "issuers")
}

// ContractAddress returns the address of the order book contract.
func (c Config) ContractAddress() ledger.Address {
	return ledger.ScriptAddress(c.ContractHash)
}

// Registry returns the registry of the configured issuers.
func (c Config) Registry() (*did.Registry, error) {
	return did.NewRegistry(c.Issuers...)
}

// Contract returns the order book contract as configured.
func (c Config) Contract() (*validator.Contract, error) {
	reg, err := c.Registry()
	if err != nil {
		return nil, err
	}
	v := validator.New(did.NewChecker(reg), validator.Options{
		RequireCancelCredential: c.RequireCancelCredential,
	})
	return validator.NewContract(v), nil
}

// Logger returns a logger writing to stdout at the configured level.
func (c Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(c.LogLevel)
	return logger
}

// parseConfigTypes is used by viper to parse the custom types out of the config file.
func parseConfigTypes() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		switch to {
		case reflect.TypeOf(ledger.CredentialHash("")):
			s, ok := data.(string)
			if !ok {
				return nil, errors.New("expected a string for a credential hash")
			}
			return ledger.CredentialHashFromHex(s)
		case reflect.TypeOf(value.PolicyID("")):
			s, ok := data.(string)
			if !ok {
				return nil, errors.New("expected a string for a policy id")
			}
			return value.PolicyIDFromHex(s)
		case reflect.TypeOf(order.AuthLevel(0)):
			if s, ok := data.(string); ok {
				return parseAuthLevel(s)
			}
			// JSON yields float64 and TOML int64.
			l, err := cast.ToInt64E(data)
			if err != nil {
				return nil, errors.Wrap(err, "parsing auth level")
			}
			return order.AuthLevel(l), nil
		case reflect.TypeOf(logrus.Level(0)):
			s, ok := data.(string)
			if !ok {
				return nil, errors.New("expected a string for the log level")
			}
			lvl, err := logrus.ParseLevel(s)
			return lvl, errors.Wrap(err, "parsing log level")
		default:
			return data, nil
		}
	}
}

func parseAuthLevel(s string) (order.AuthLevel, error) {
	switch s {
	case "basic":
		return order.AuthLevelBasic, nil
	case "accredited":
		return order.AuthLevelAccredited, nil
	case "business":
		return order.AuthLevelBusiness, nil
	}
	return 0, errors.Errorf("unknown auth level %q", s)
}
