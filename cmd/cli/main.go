package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/amirasaad/topupledger/infra"
	"github.com/amirasaad/topupledger/infra/repository"
	"github.com/amirasaad/topupledger/pkg/authz"
	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/ledger"
	"github.com/amirasaad/topupledger/pkg/service/auth"
	"github.com/google/uuid"
)

const usage = `Usage: cli <command> [arguments]
Commands:
  token <subject> <role>[,<role>...]          mint a bearer token (roles: admin, operator, user, service)
  create <holder> <contact> [credential]      open an account
  balance <account_id>                        list the balances of an account`

func main() {
	argsLen := len(os.Args)
	if argsLen < 2 {
		fmt.Println(usage)
		return
	}
	cmd := os.Args[1]
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Println("Failed to load configuration:", err)
		os.Exit(1)
	}

	switch cmd {
	case "token":
		if argsLen < 4 {
			fmt.Println("Usage: token <subject> <role>[,<role>...]")
			os.Exit(1)
		}
		roles := authz.ParseRoles(strings.Split(os.Args[3], ","))
		if len(roles) == 0 {
			fmt.Println("No valid role in", os.Args[3])
			os.Exit(1)
		}
		svc := auth.NewWithJWT(nil, cfg.Auth.Jwt, logger)
		token, err := svc.GenerateToken(ctx, authz.Principal{Subject: os.Args[2], Roles: roles})
		if err != nil {
			fmt.Println("Error minting token:", err)
			os.Exit(1)
		}
		fmt.Println(token)
	case "create":
		if argsLen < 4 {
			fmt.Println("Usage: create <holder> <contact> [credential]")
			os.Exit(1)
		}
		credential := ""
		if argsLen > 4 {
			credential = os.Args[4]
		}
		svc := openLedger(cfg, logger)
		a, err := svc.CreateAccount(ctx, os.Args[2], os.Args[3], credential)
		if err != nil {
			fmt.Println("Error creating account:", err)
			os.Exit(1)
		}
		fmt.Printf("Account created: ID=%s, Holder=%s, Contact=%s\n", a.ID, a.HolderName, a.Contact)
	case "balance":
		if argsLen < 3 {
			fmt.Println("Usage: balance <account_id>")
			os.Exit(1)
		}
		id, err := uuid.Parse(os.Args[2])
		if err != nil {
			fmt.Println("Invalid account id:", err)
			os.Exit(1)
		}
		svc := openLedger(cfg, logger)
		balances, err := svc.Balances(ctx, id)
		if err != nil {
			fmt.Println("Error fetching balances:", err)
			os.Exit(1)
		}
		if len(balances) == 0 {
			fmt.Printf("Account %s holds no balance\n", id)
		}
		for _, b := range balances {
			fmt.Printf("Account %s balance: %s %s\n", id, b.Amount.StringFixed(2), b.Currency)
		}
	default:
		fmt.Println("Unknown command:", cmd)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func openLedger(cfg *config.App, logger *slog.Logger) *ledger.Service {
	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		fmt.Println("Failed to connect to database:", err)
		os.Exit(1)
	}
	return ledger.New(repository.NewUoW(db), logger)
}
