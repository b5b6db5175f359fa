package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/No-Gas-Labs/sui-flash-loan-dapp/core"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/ledger"
)

var rpcEndpoint = defaultRPCEndpoint()

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("FLASH_RPC_URL")); url != "" {
		return url
	}
	return "http://127.0.0.1:8645"
}

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	rest := args[1:]
	switch command {
	case "get-pool":
		requireArgs(rest, 1, "get-pool <pool-id>")
		getPool(rest[0])
	case "stats":
		getStats()
	case "health":
		getHealth()
	case "create-pool":
		requireArgs(rest, 3, "create-pool <pool-id> <owner> <deposit> [fee-bps] [max-loan]")
		tx := &core.Transaction{
			Action: core.ActionCreatePool,
			PoolID: rest[0],
			Sender: rest[1],
			Amount: rest[2],
			Nonce:  uuid.NewString(),
		}
		if len(rest) > 3 {
			tx.FeeRateBps = parseBps(rest[3])
		}
		if len(rest) > 4 {
			tx.MaxLoan = rest[4]
		}
		submit(tx)
	case "request-loan":
		requireArgs(rest, 3, "request-loan <pool-id> <borrower> <amount>")
		submit(&core.Transaction{
			Action: core.ActionRequestLoan,
			PoolID: rest[0],
			Sender: rest[1],
			Amount: rest[2],
			Nonce:  uuid.NewString(),
		})
	case "repay-loan":
		requireArgs(rest, 5, "repay-loan <pool-id> <sender> <repayment> <loan-id> <capability-token>")
		loanID, err := strconv.ParseUint(rest[3], 10, 64)
		if err != nil {
			fatal(fmt.Errorf("invalid loan id %q", rest[3]))
		}
		submit(&core.Transaction{
			Action:    core.ActionRepayLoan,
			PoolID:    rest[0],
			Sender:    rest[1],
			Repayment: rest[2],
			Capability: &core.CapabilityPayload{
				PoolID: rest[0],
				LoanID: loanID,
				Token:  rest[4],
			},
			Nonce: uuid.NewString(),
		})
	case "pause":
		requireArgs(rest, 2, "pause <pool-id> <owner>")
		submit(&core.Transaction{Action: core.ActionPause, PoolID: rest[0], Sender: rest[1], Nonce: uuid.NewString()})
	case "resume":
		requireArgs(rest, 2, "resume <pool-id> <owner>")
		submit(&core.Transaction{Action: core.ActionResume, PoolID: rest[0], Sender: rest[1], Nonce: uuid.NewString()})
	case "update-params":
		requireArgs(rest, 3, "update-params <pool-id> <owner> <fee-bps> [max-loan]")
		tx := &core.Transaction{
			Action:     core.ActionUpdateParams,
			PoolID:     rest[0],
			Sender:     rest[1],
			FeeRateBps: parseBps(rest[2]),
			Nonce:      uuid.NewString(),
		}
		if len(rest) > 3 {
			tx.MaxLoan = rest[3]
		}
		submit(tx)
	case "withdraw-fees":
		requireArgs(rest, 3, "withdraw-fees <pool-id> <owner> <amount>")
		submit(&core.Transaction{
			Action: core.ActionWithdrawFees,
			PoolID: rest[0],
			Sender: rest[1],
			Amount: rest[2],
			Nonce:  uuid.NewString(),
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
}

func applyGlobalFlags(args []string) ([]string, error) {
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a value")
			}
			i++
			rpcEndpoint = args[i]
		case strings.HasPrefix(args[i], "--rpc="):
			rpcEndpoint = strings.TrimPrefix(args[i], "--rpc=")
		default:
			remaining = append(remaining, args[i])
		}
	}
	return remaining, nil
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: flash-cli %s\n", usage)
		os.Exit(1)
	}
}

func newClient() (*ledger.Client, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	return ledger.NewClient(15 * time.Second), ctx, cancel
}

func getPool(id string) {
	client, ctx, cancel := newClient()
	defer cancel()
	pool, err := client.GetPool(ctx, rpcEndpoint, id)
	if err != nil {
		fatal(err)
	}
	printJSON(pool)
}

func getStats() {
	client, ctx, cancel := newClient()
	defer cancel()
	stats, err := client.Stats(ctx, rpcEndpoint)
	if err != nil {
		fatal(err)
	}
	printJSON(stats)
}

func getHealth() {
	client, ctx, cancel := newClient()
	defer cancel()
	if err := client.Health(ctx, rpcEndpoint); err != nil {
		fatal(err)
	}
	fmt.Println("ok")
}

func submit(tx *core.Transaction) {
	envelope, err := core.EncodeTransaction(tx)
	if err != nil {
		fatal(err)
	}
	client, ctx, cancel := newClient()
	defer cancel()
	result, err := client.SubmitTransaction(ctx, rpcEndpoint, envelope)
	if err != nil {
		fatal(err)
	}
	printJSON(result)
}

func parseBps(raw string) uint64 {
	bps, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		fatal(fmt.Errorf("invalid basis points %q", raw))
	}
	return bps
}

func printJSON(v interface{}) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(encoded))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`flash-cli - flash loan pool operations

Usage:
  flash-cli [--rpc <url>] <command> [args]

Commands:
  get-pool <pool-id>
  stats
  health
  create-pool <pool-id> <owner> <deposit> [fee-bps] [max-loan]
  request-loan <pool-id> <borrower> <amount>
  repay-loan <pool-id> <sender> <repayment> <loan-id> <capability-token>
  pause <pool-id> <owner>
  resume <pool-id> <owner>
  update-params <pool-id> <owner> <fee-bps> [max-loan]
  withdraw-fees <pool-id> <owner> <amount>

The RPC endpoint defaults to http://127.0.0.1:8645 and can be overridden
with --rpc or the FLASH_RPC_URL environment variable.`)
}
