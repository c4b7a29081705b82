package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"
)

// @title Notes API
// @version 1.0
// @description Document store service over MongoDB or PostgreSQL JSONB.
// @BasePath /
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
