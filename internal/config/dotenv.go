package config

import (
	"os"

	"github.com/joho/godotenv"
)

// dotenv files in load order; godotenv never overwrites variables that are
// already set, so OS env wins over .env.local, which wins over .env.
var dotenvCandidates = []string{".env.local", ".env"}

// LoadDotEnv reads the dotenv files that exist in the working directory and
// returns their names, so startup logging can show where secrets came from.
func LoadDotEnv() []string {
	var loaded []string
	for _, name := range dotenvCandidates {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			continue
		}
		loaded = append(loaded, name)
	}
	return loaded
}
