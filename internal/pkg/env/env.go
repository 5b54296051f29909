package env

import (
	"os"

	"github.com/joho/godotenv"
)

var values map[string]string

// GetEnv returns the value for key from the loaded .env file, falling back
// to the process environment (Docker/tests) and finally to def.
func GetEnv(key, def string) string {
	if val, ok := values[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the project .env file. Binaries run from the project
// root or from their cmd/ directory, so a few relative locations are tried.
func SetupEnvFile() {
	candidates := []string{
		".env",          // project root
		"../../.env",    // from cmd/zinehub or cmd/migrate
		"../../../.env", // deeper nesting (tests)
	}

	var err error
	for _, path := range candidates {
		values, err = godotenv.Read(path)
		if err == nil {
			return
		}
	}

	panic("No .env file found in any of the expected locations")
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
