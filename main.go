package main

import (
	"flag"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
)

func main() {
	// Optional .env for local runs; real deployments set the
	// environment directly.
	godotenv.Load()
	flag.Parse()

	server, err := Setup()
	if err != nil {
		log.Fatalf("main start failed %v", err)
		return
	}

	server.Run()
}
