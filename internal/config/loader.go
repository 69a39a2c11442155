package config

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/omeid/uconfig/flat"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
)

const (
	TagEnv  = "env"
	TagFlag = "flag"
	TagDesc = "desc"
)

var (
	ErrEnvParse         = errors.New("cannot parse environment variable")
	ErrFlagParse        = errors.New("cannot parse flag")
	ErrConfigInvalid    = errors.New("invalid config struct")
	ErrConfigValidation = errors.New("config validation error")
)

// LoadConfig populates cfg from environment variables and command line
// flags, flags taking precedence, then validates it. Field mapping is
// declared with env/flag/desc struct tags.
func LoadConfig(cfg interface{}, osArgs *[]string) error {
	// recursively iterates over each field of the nested struct
	fields, err := flat.View(cfg)
	if err != nil {
		return lib.WrapError(ErrConfigInvalid, err)
	}

	flagset := flag.NewFlagSet("", flag.ContinueOnError)

	for _, field := range fields {
		envName, ok := field.Tag(TagEnv)
		if !ok {
			continue
		}

		// an empty variable counts as unset, typed fields cannot parse it
		if envValue := os.Getenv(envName); envValue != "" {
			if err := field.Set(envValue); err != nil {
				return lib.WrapError(ErrEnvParse, fmt.Errorf("%s: %w", envName, err))
			}
		}

		flagName, ok := field.Tag(TagFlag)
		if !ok {
			continue
		}

		flagDesc, _ := field.Tag(TagDesc)

		// writes flag value to variable
		flagset.Var(field, flagName, flagDesc)
	}

	var args []string
	if osArgs != nil {
		args = *osArgs
	} else {
		args = os.Args
	}

	// flags override environment variables
	err = flagset.Parse(args[1:])
	if err != nil {
		return lib.WrapError(ErrFlagParse, err)
	}

	err = validator.New().Struct(cfg)
	if err != nil {
		return lib.WrapError(ErrConfigValidation, err)
	}

	return nil
}
