// Command cardledger runs the campus card ledger service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/campus-card/cardledger/internal/app"
	"github.com/campus-card/cardledger/internal/config"
	"github.com/campus-card/cardledger/internal/security"
	log "github.com/sirupsen/logrus"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: cardledger <command> [flags]

commands:
  serve     run the HTTP API (default)
  migrate   create or update the database schema
  token     print an operator token

run "cardledger <command> -h" for flags
`)
}

func main() {
	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	var appCfg config.AppConfig
	fs.StringVar(&appCfg.ConfigPath, "config", config.DefaultConfigPath, "path to the YAML configuration file")
	fs.StringVar(&appCfg.EnvFile, "env-file", ".env", "optional .env file loaded before the environment")

	var operatorID, name, role string
	if command == "token" {
		fs.StringVar(&operatorID, "operator", "", "operator id placed in the token")
		fs.StringVar(&name, "name", "", "operator display name")
		fs.StringVar(&role, "role", security.RoleOperator, "viewer, operator or admin")
	}
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "serve":
		err = app.RunServer(ctx, appCfg)
	case "migrate":
		err = app.Migrate(ctx, appCfg)
		if err == nil {
			log.Info("migration complete")
		}
	case "token":
		if operatorID == "" {
			fmt.Fprintln(os.Stderr, "token: -operator is required")
			os.Exit(2)
		}
		var token string
		token, err = app.IssueToken(appCfg, operatorID, name, role)
		if err == nil {
			fmt.Println(token)
		}
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Errorf("cardledger %s failed", command)
		os.Exit(1)
	}
}
