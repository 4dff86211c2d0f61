package config

import "errors"

var (
	// ErrInvalidConfig wraps validation failures; the message names the key.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrLoadConfig wraps failures reading the config file or the environment.
	ErrLoadConfig = errors.New("cannot load configuration")
)
