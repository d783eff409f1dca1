package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"stakeledger/cmd/internal/passphrase"
	"stakeledger/crypto"
	"stakeledger/services/stakingd/client"
	"stakeledger/services/stakingd/config"
	"stakeledger/services/stakingd/server"
)

const (
	defaultURL     = "http://localhost:7080"
	defaultPassEnv = "STAKECTL_PASS"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return fmt.Errorf("command required")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "keygen":
		return runKeygen(rest, out)
	case "token":
		return runToken(rest, out)
	case "create-pools":
		return runCreatePools(rest, out)
	case "stake", "unstake", "claim", "settle":
		return runPoolAction(cmd, rest, out)
	case "show":
		return runShow(rest, out)
	case "fund":
		return runFund(rest, out)
	case "events":
		return runEvents(rest, out)
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: stakectl <command> [flags]

commands:
  keygen        generate a participant key into an encrypted keystore
  token         mint an HS256 bearer token for a participant
  create-pools  open the pools declared in a TOML manifest
  stake         deposit principal into a pool
  unstake       withdraw principal and rewards from a pool
  claim         pay out accrued rewards
  settle        advance a pool accumulator
  show          print a pool or a stake
  fund          mint units to a holder (admin)
  events        page through the event feed`)
}

type apiFlags struct {
	url   *string
	token *string
}

func addAPIFlags(fs *flag.FlagSet) apiFlags {
	url := os.Getenv("STAKECTL_URL")
	if url == "" {
		url = defaultURL
	}
	return apiFlags{
		url:   fs.String("url", url, "stakingd base URL (env STAKECTL_URL)"),
		token: fs.String("token", os.Getenv("STAKECTL_TOKEN"), "bearer token (env STAKECTL_TOKEN)"),
	}
}

func (f apiFlags) client() (*client.Client, error) {
	return client.New(*f.url, client.WithToken(*f.token))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readPassphrase(env string) (string, error) {
	return passphrase.NewSource(env, "participant keystore").Get()
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	path := fs.String("keystore", "participant.keystore", "output keystore path")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*path); err == nil {
			return fmt.Errorf("keystore %s already exists (use -force to overwrite)", *path)
		}
	}
	pass, err := readPassphrase(*passEnv)
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*path, key, pass); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintln(out, key.PubKey().Address().String())
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "derive the subject from this keystore")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	subject := fs.String("subject", "", "participant address (instead of -keystore)")
	scopes := fs.String("scope", "", "space separated scopes, e.g. admin")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	issuer := fs.String("issuer", "", "iss claim")
	audience := fs.String("audience", "", "aud claim")
	if err := fs.Parse(args); err != nil {
		return err
	}
	secret := os.Getenv(config.EnvJWTSecret)
	if secret == "" {
		return fmt.Errorf("%s must hold the daemon's signing secret", config.EnvJWTSecret)
	}
	var addr crypto.Address
	switch {
	case *keystorePath != "":
		pass, err := readPassphrase(*passEnv)
		if err != nil {
			return err
		}
		key, err := crypto.LoadFromKeystore(*keystorePath, pass)
		if err != nil {
			return fmt.Errorf("load keystore: %w", err)
		}
		addr = key.PubKey().Address()
	case *subject != "":
		decoded, err := crypto.DecodeAddressWithPrefix(strings.TrimSpace(*subject), crypto.ParticipantPrefix)
		if err != nil {
			return err
		}
		addr = decoded
	default:
		return fmt.Errorf("-keystore or -subject is required")
	}
	tok, err := server.IssueToken(secret, server.TokenParams{
		Subject:  addr,
		Scopes:   strings.Fields(*scopes),
		Issuer:   *issuer,
		Audience: *audience,
		TTL:      *ttl,
	}, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tok)
	return nil
}

func runCreatePools(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create-pools", flag.ContinueOnError)
	api := addAPIFlags(fs)
	manifestPath := fs.String("manifest", "pools.toml", "TOML pool manifest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	manifest, err := loadManifest(*manifestPath)
	if err != nil {
		return err
	}
	c, err := api.client()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, entry := range manifest.Pools {
		pool, err := c.CreatePool(ctx, entry.request())
		if err != nil {
			return fmt.Errorf("create pool %s: %w", entry.Name, err)
		}
		if entry.Fund > 0 {
			if _, err := c.Fund(ctx, pool.RewardUnit, pool.RewardVault, entry.Fund); err != nil {
				return fmt.Errorf("fund pool %s: %w", entry.Name, err)
			}
		}
		fmt.Fprintf(out, "%s\t%s\t%s/%s\n", entry.Name, pool.ID, pool.PrincipalUnit, pool.RewardUnit)
	}
	return nil
}

func runPoolAction(cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	api := addAPIFlags(fs)
	poolID := fs.String("pool", "", "pool address")
	amount := fs.Uint64("amount", 0, "principal units (stake only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *poolID == "" {
		return fmt.Errorf("-pool is required")
	}
	c, err := api.client()
	if err != nil {
		return err
	}
	ctx := context.Background()
	var result any
	switch cmd {
	case "stake":
		result, err = c.Stake(ctx, *poolID, *amount)
	case "unstake":
		result, err = c.Unstake(ctx, *poolID)
	case "claim":
		result, err = c.Claim(ctx, *poolID)
	case "settle":
		result, err = c.Settle(ctx, *poolID)
	}
	if err != nil {
		return err
	}
	return printJSON(out, result)
}

func runShow(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	api := addAPIFlags(fs)
	poolID := fs.String("pool", "", "pool address; omit to list all pools")
	owner := fs.String("owner", "", "participant address to show a stake")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := api.client()
	if err != nil {
		return err
	}
	ctx := context.Background()
	switch {
	case *poolID == "":
		pools, err := c.Pools(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, pools)
	case *owner != "":
		stake, err := c.StakeSummary(ctx, *poolID, *owner)
		if err != nil {
			return err
		}
		return printJSON(out, stake)
	default:
		pool, err := c.Pool(ctx, *poolID)
		if err != nil {
			return err
		}
		return printJSON(out, pool)
	}
}

func runFund(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fund", flag.ContinueOnError)
	api := addAPIFlags(fs)
	unit := fs.String("unit", "", "unit to mint")
	holder := fs.String("holder", "", "receiving address")
	amount := fs.Uint64("amount", 0, "amount to mint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := api.client()
	if err != nil {
		return err
	}
	res, err := c.Fund(context.Background(), *unit, *holder, *amount)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func runEvents(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	api := addAPIFlags(fs)
	after := fs.Uint64("after", 0, "return events after this sequence number")
	limit := fs.Int("limit", 100, "page size")
	eventType := fs.String("type", "", "filter by event type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := api.client()
	if err != nil {
		return err
	}
	evts, err := c.Events(context.Background(), *after, *limit, *eventType)
	if err != nil {
		return err
	}
	return printJSON(out, evts)
}
