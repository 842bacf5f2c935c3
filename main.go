package main

import (
	"os"

	"feedscout/cmd"

	log "github.com/sirupsen/logrus"
	_ "golang.org/x/crypto/x509roots/fallback" // We need this to make TLS work in scratch containers
)

func main() {
	if err := cmd.RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
