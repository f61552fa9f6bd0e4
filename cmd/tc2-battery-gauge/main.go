package main

import (
	"fmt"
	"os"

	gauge "github.com/TheCacophonyProject/tc2-battery-gauge/internal/tc2-battery-gauge"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

var version = "<not set>"

func runMain() error {
	if len(os.Args) < 2 {
		log.Info("Usage: tool <subcommand> [args]")
		return fmt.Errorf("no subcommand given")
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "gauge":
		err = gauge.Run(args, version)
	default:
		err = fmt.Errorf("unknown subcommand: %s", subcommand)
	}

	return err
}
