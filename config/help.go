package config

import (
	"flag"
	"fmt"
)

const HelpMessage = `ambulance-dispatch: real-time emergency dispatch service

Usage:
  dispatch [flags]

Flags:
  -config string
        path to the YAML config file (default "config.yaml")
  -help
        print this message and exit

Every config value can also be set through environment variables,
e.g. SERVER_PORT, DATABASE_HOST, RABBITMQ_HOST, AUTH_JWT_SECRET.
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s", HelpMessage)
	} else {
		flag.Usage()
	}
}
