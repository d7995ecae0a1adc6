package main

import (
	"log"

	"pollctl/internal/client/cli"

	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	// .env is optional
	_ = godotenv.Load()

	log.SetFlags(0)
	cli.Init(version)
	cli.Execute()
}
