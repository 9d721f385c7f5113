// ABOUTME: Admin CLI for whitelist-gateway
// ABOUTME: Talks to the Whitelist gRPC service with a bearer token

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/2389/whitelist-gateway/internal/contract"
	"github.com/2389/whitelist-gateway/internal/rpc"
	"github.com/2389/whitelist-gateway/internal/whitelist"
)

const banner = `
           _     _ _       _ _     _                 _           _
 __      _| |__ (_) |_ ___| (_)___| |_      __ _  __| |_ __ ___ (_)_ __
 \ \ /\ / / '_ \| | __/ _ \ | / __| __|____/ _' |/ _' | '_ ' _ \| | '_ \
  \ V  V /| | | | | ||  __/ | \__ \ ||_____| (_| | (_| | | | | | | | | | |
   \_/\_/ |_| |_|_|\__\___|_|_|___/\__|     \__,_|\__,_|_| |_| |_|_|_| |_|
`

// session holds the connection settings shared by every command.
type session struct {
	addr    string
	token   string
	timeout time.Duration
	out     io.Writer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	s := &session{}

	root := &cobra.Command{
		Use:   "whitelist-admin",
		Short: "Manage a whitelist-gateway over gRPC",
		Long: banner + `
Environment:
  WHITELIST_GATEWAY_GRPC   Gateway gRPC address (default: localhost:50051)
  WHITELIST_TOKEN          JWT authentication token (falls back to ~/.config/whitelist/token)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			s.out = cmd.OutOrStdout()
		},
	}

	defaultAddr := os.Getenv("WHITELIST_GATEWAY_GRPC")
	if defaultAddr == "" {
		defaultAddr = "localhost:50051"
	}
	root.PersistentFlags().StringVar(&s.addr, "addr", defaultAddr, "gateway gRPC address")
	root.PersistentFlags().StringVar(&s.token, "token", getToken(), "JWT bearer token")
	root.PersistentFlags().DurationVar(&s.timeout, "timeout", 10*time.Second, "per-call timeout")

	root.AddCommand(
		newAdminsCmd(s),
		newInfoCmd(s),
		newCanExecuteCmd(s),
		newUpdateAdminsCmd(s),
		newFreezeCmd(s),
		newExecuteCmd(s),
		newInstantiateCmd(s),
	)
	return root
}

// getToken reads WHITELIST_TOKEN or the token file written by bootstrap.
func getToken() string {
	if token := os.Getenv("WHITELIST_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "whitelist", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// call dials the gateway and runs fn with an authenticated, time-limited context.
func (s *session) call(ctx context.Context, fn func(context.Context, rpc.WhitelistClient) error) error {
	conn, err := grpc.NewClient(s.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", s.addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if s.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+s.token)
	}
	return fn(ctx, rpc.NewWhitelistClient(conn))
}

func (s *session) query(ctx context.Context, msg *contract.QueryMsg) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}
	var out []byte
	err = s.call(ctx, func(ctx context.Context, c rpc.WhitelistClient) error {
		resp, err := c.Query(ctx, wrapperspb.Bytes(payload))
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		out = resp.GetValue()
		return nil
	})
	return out, err
}

func (s *session) execute(ctx context.Context, msg *contract.ExecMsg, requestID string) (*whitelist.Response, error) {
	if s.token == "" {
		return nil, fmt.Errorf("a token is required (set WHITELIST_TOKEN or --token)")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	var resp whitelist.Response
	err = s.call(ctx, func(ctx context.Context, c rpc.WhitelistClient) error {
		if requestID != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, rpc.MetadataRequestID, requestID)
		}
		out, err := c.Execute(ctx, wrapperspb.Bytes(payload))
		if err != nil {
			return fmt.Errorf("execute: %w", err)
		}
		return json.Unmarshal(out.GetValue(), &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *session) printResponse(resp *whitelist.Response) {
	green := color.New(color.FgGreen)
	green.Fprintf(s.out, "  ✓ %s\n", resp.Action())
	for _, a := range resp.Attributes {
		if a.Key != "action" {
			fmt.Fprintf(s.out, "  %-10s %s\n", a.Key+":", a.Value)
		}
	}
	for i, m := range resp.Messages {
		fmt.Fprintf(s.out, "  msg[%d]:    %s\n", i, m)
	}
}

func newAdminsCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "admins",
		Short: "List admins and the mutability flag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := s.query(cmd.Context(), &contract.QueryMsg{AdminList: &contract.AdminListQuery{}})
			if err != nil {
				return err
			}
			var list whitelist.AdminList
			if err := json.Unmarshal(raw, &list); err != nil {
				return fmt.Errorf("decoding admin list: %w", err)
			}
			printAdminList(s.out, &list)
			return nil
		},
	}
}

func printAdminList(out io.Writer, list *whitelist.AdminList) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  #\tADMIN")
	fmt.Fprintln(w, "  -\t-----")
	for i, a := range list.Admins {
		fmt.Fprintf(w, "  %d\t%s\n", i+1, a)
	}
	w.Flush()

	state := color.GreenString("mutable")
	if !list.Mutable {
		state = color.YellowString("frozen")
	}
	fmt.Fprintf(out, "\n  %d admin(s), %s\n", len(list.Admins), state)
}

func newInfoCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the contract name and version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := s.query(cmd.Context(), &contract.QueryMsg{ContractInfo: &contract.ContractInfoQuery{}})
			if err != nil {
				return err
			}
			var info whitelist.ContractInfo
			if err := json.Unmarshal(raw, &info); err != nil {
				return fmt.Errorf("decoding contract info: %w", err)
			}
			fmt.Fprintf(s.out, "  %s %s\n", info.Contract, info.Version)
			return nil
		},
	}
}

// readMessages loads a JSON array of actions, or a single action, from path
// ("-" reads stdin).
func readMessages(path string, stdin io.Reader) ([]json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var msgs []json.RawMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("decoding actions: %w", err)
		}
		return msgs, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s does not contain valid JSON", path)
	}
	return []json.RawMessage{data}, nil
}

func newCanExecuteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "can-execute <sender> <action-file|->",
		Short: "Ask whether sender may forward the action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := readMessages(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(msgs) != 1 {
				return fmt.Errorf("can-execute takes exactly one action, got %d", len(msgs))
			}
			raw, err := s.query(cmd.Context(), &contract.QueryMsg{
				CanExecute: &contract.CanExecuteQuery{Sender: args[0], Msg: msgs[0]},
			})
			if err != nil {
				return err
			}
			var res contract.CanExecuteResponse
			if err := json.Unmarshal(raw, &res); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			if res.CanExecute {
				color.New(color.FgGreen).Fprintf(s.out, "  %s can execute\n", args[0])
			} else {
				color.New(color.FgYellow).Fprintf(s.out, "  %s cannot execute\n", args[0])
			}
			return nil
		},
	}
}

func newUpdateAdminsCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "update-admins <admin>...",
		Short: "Replace the admin set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := s.execute(cmd.Context(), &contract.ExecMsg{
				UpdateAdmins: &contract.UpdateAdminsMsg{Admins: args},
			}, "")
			if err != nil {
				return err
			}
			s.printResponse(resp)
			return nil
		},
	}
}

func newFreezeCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "freeze",
		Short: "Permanently freeze the admin set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := s.execute(cmd.Context(), &contract.ExecMsg{Freeze: &contract.FreezeMsg{}}, "")
			if err != nil {
				return err
			}
			s.printResponse(resp)
			return nil
		},
	}
}

func newExecuteCmd(s *session) *cobra.Command {
	var requestID string
	cmd := &cobra.Command{
		Use:   "execute <actions-file|->",
		Short: "Forward actions as the token's sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := readMessages(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if requestID == "" {
				requestID = uuid.New().String()
			}
			resp, err := s.execute(cmd.Context(), &contract.ExecMsg{
				Execute: &contract.ExecuteMsg{Msgs: msgs},
			}, requestID)
			if err != nil {
				return err
			}
			s.printResponse(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&requestID, "request-id", "", "idempotency key (default: random)")
	return cmd
}

func newInstantiateCmd(s *session) *cobra.Command {
	var admins []string
	var frozen bool
	cmd := &cobra.Command{
		Use:   "instantiate --admins a,b",
		Short: "Create the whitelist on an empty gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(admins) == 0 {
				return fmt.Errorf("--admins is required")
			}
			payload, err := json.Marshal(&contract.InstantiateMsg{Admins: admins, Mutable: !frozen})
			if err != nil {
				return fmt.Errorf("encoding message: %w", err)
			}
			return s.call(cmd.Context(), func(ctx context.Context, c rpc.WhitelistClient) error {
				if _, err := c.Instantiate(ctx, wrapperspb.Bytes(payload)); err != nil {
					return fmt.Errorf("instantiate: %w", err)
				}
				color.New(color.FgGreen).Fprintf(s.out, "  ✓ instantiated with %d admin(s)\n", len(admins))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&admins, "admins", nil, "initial admins")
	cmd.Flags().BoolVar(&frozen, "frozen", false, "create the whitelist already frozen")
	return cmd
}
