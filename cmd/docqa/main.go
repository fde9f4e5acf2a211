package main

import (
	"docqa/internal/cli"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cli.Execute()
}
