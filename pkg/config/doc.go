// Package config loads process configuration from environment variables into
// tagged structs.
//
// Values are read with github.com/caarlos0/env/v11. Before the first parse the
// package tries the .env file in the working directory through
// github.com/joho/godotenv; a missing file is not an error. Extra files can be
// loaded explicitly with LoadEnv, later files overriding earlier ones.
//
// Each struct type is parsed once per process and cached by type:
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// ResetCache and ForceReload exist for tests that change the environment.
package config
