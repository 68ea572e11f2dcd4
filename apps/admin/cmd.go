package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	apikeydomain "github.com/smallbiznis/feeledger/internal/apikey/domain"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	keys apikeydomain.Service
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  createkey -name NAME -role cashier|accountant|admin - issue a new API key")
	fmt.Fprintln(cli.out, "  listkeys - list API keys")
	fmt.Fprintln(cli.out, "  rotatekey -key KEY_ID - issue a replacement secret for a key")
	fmt.Fprintln(cli.out, "  revokekey -key KEY_ID - disable a key")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createCmd := flag.NewFlagSet("createkey", flag.ContinueOnError)
	createName := createCmd.String("name", "", "Display name of the key holder.")
	createRole := createCmd.String("role", "", "Role granted to the key.")

	rotateCmd := flag.NewFlagSet("rotatekey", flag.ContinueOnError)
	rotateKey := rotateCmd.String("key", "", "Key id to rotate.")

	revokeCmd := flag.NewFlagSet("revokekey", flag.ContinueOnError)
	revokeKey := revokeCmd.String("key", "", "Key id to revoke.")

	for _, fs := range []*flag.FlagSet{createCmd, rotateCmd, revokeCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "createkey":
		if err := createCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createName == "" || *createRole == "" {
			createCmd.Usage()
			return errHelp
		}
		secret, err := cli.keys.Create(ctx, apikeydomain.CreateRequest{Name: *createName, Role: *createRole})
		if err != nil {
			return err
		}
		cli.printSecret(secret)
		return nil
	case "listkeys":
		keys, err := cli.keys.List(ctx)
		if err != nil {
			return err
		}
		cli.printKeys(keys)
		return nil
	case "rotatekey":
		if err := rotateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rotateKey == "" {
			rotateCmd.Usage()
			return errHelp
		}
		secret, err := cli.keys.Rotate(ctx, *rotateKey)
		if err != nil {
			return err
		}
		cli.printSecret(secret)
		return nil
	case "revokekey":
		if err := revokeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *revokeKey == "" {
			revokeCmd.Usage()
			return errHelp
		}
		if err := cli.keys.Revoke(ctx, *revokeKey); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "revoked %s\n", *revokeKey)
		return nil
	default:
		cli.printUsage()
		return errHelp
	}
}

// printSecret shows the raw key once; only its hash is stored.
func (cli *commandLine) printSecret(secret *apikeydomain.SecretResponse) {
	fmt.Fprintf(cli.out, "key_id:  %s\n", secret.KeyID)
	fmt.Fprintf(cli.out, "role:    %s\n", secret.Role)
	fmt.Fprintf(cli.out, "api_key: %s\n", secret.APIKey)
}

func (cli *commandLine) printKeys(keys []apikeydomain.Response) {
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY ID\tNAME\tROLE\tACTIVE\tLAST USED")
	for _, k := range keys {
		lastUsed := "-"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", k.KeyID, k.Name, k.Role, k.IsActive, lastUsed)
	}
	_ = w.Flush()
}
