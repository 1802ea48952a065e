package config

import (
	"github.com/joho/godotenv"
)

// LoadDotEnv reads the given .env files into the process environment.
// Variables already set in the environment take precedence.
// With no paths it reads ./.env.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}
