package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/frankieli/color_wager/pkg/auth"
	"github.com/frankieli/color_wager/pkg/logger"
)

const usage = `Usage: ops [flags] <command> [args]

Commands:
  token <user_id> [player|operator]   Print a signed access token
  override <mode> <digit>             Force the next outcome of a mode
  balance <user_id> <amount>          Set a player's balance
  block <user_id> <true|false>        Block or unblock a player
  stats                               Show pending stake and round clocks
  distribution <mode>                 Show the wagers on the current round
`

type client struct {
	host  string
	token string
	http  *http.Client
}

func main() {
	host := flag.String("host", "localhost:8080", "Server host address")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "JWT secret shared with the server")
	operatorID := flag.Int64("operator", 1, "User id embedded in the operator token")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	logger.Init(logger.Config{Level: "warn", Format: "console"})
	defer logger.Flush()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	authenticator := auth.NewAuthenticator(*secret, *ttl)
	if err := run(context.Background(), authenticator, *host, *operatorID, args); err != nil {
		logger.ErrorGlobal().Err(err).Str("command", args[0]).Msg("❌ ops command failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, authenticator *auth.Authenticator, host string, operatorID int64, args []string) error {
	if args[0] == "token" {
		return issueToken(authenticator, args[1:])
	}

	token, _, err := authenticator.Issue(operatorID, auth.RoleOperator)
	if err != nil {
		return err
	}
	c := &client{host: host, token: token, http: &http.Client{Timeout: 10 * time.Second}}

	switch args[0] {
	case "override":
		if len(args) != 3 {
			return fmt.Errorf("override needs <mode> <digit>")
		}
		digit, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid digit %q: %w", args[2], err)
		}
		return c.do(ctx, http.MethodPost, "/api/admin/override", map[string]interface{}{"mode": args[1], "digit": digit})
	case "balance":
		if len(args) != 3 {
			return fmt.Errorf("balance needs <user_id> <amount>")
		}
		amount, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[2], err)
		}
		return c.do(ctx, http.MethodPut, "/api/admin/users/"+args[1]+"/balance", map[string]interface{}{"balance": amount})
	case "block":
		if len(args) != 3 {
			return fmt.Errorf("block needs <user_id> <true|false>")
		}
		blocked, err := strconv.ParseBool(args[2])
		if err != nil {
			return fmt.Errorf("invalid flag %q: %w", args[2], err)
		}
		return c.do(ctx, http.MethodPut, "/api/admin/users/"+args[1]+"/blocked", map[string]interface{}{"blocked": blocked})
	case "stats":
		return c.do(ctx, http.MethodGet, "/api/admin/stats", nil)
	case "distribution":
		if len(args) != 2 {
			return fmt.Errorf("distribution needs <mode>")
		}
		return c.do(ctx, http.MethodGet, "/api/admin/rounds/"+args[1]+"/distribution", nil)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func issueToken(authenticator *auth.Authenticator, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("token needs <user_id>")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", args[0], err)
	}
	role := auth.RolePlayer
	if len(args) > 1 {
		role = auth.Role(args[1])
	}
	token, expires, err := authenticator.Issue(userID, role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expires.Format(time.RFC3339))
	return nil
}

// do sends an authenticated request and pretty-prints the JSON reply
func (c *client) do(ctx context.Context, method, path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+c.host+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if json.Indent(&out, raw, "", "  ") != nil {
		out.Reset()
		out.Write(raw)
	}
	fmt.Println(out.String())

	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
