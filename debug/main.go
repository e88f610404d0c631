package main

import (
	"os"

	"github.com/emrgen/docview/internal/server"
	"github.com/sirupsen/logrus"
)

func main() {
	httpPort := os.Getenv("HTTP_PORT")
	if httpPort == "" {
		httpPort = "4001"
	}

	err := server.Start(httpPort)
	if err != nil {
		logrus.Fatal(err)
	}
}
