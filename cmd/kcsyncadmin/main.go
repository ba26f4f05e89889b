// Command kcsyncadmin is a break-glass operator tool for describing,
// upserting, and deleting a user's Kafka SCRAM credentials through the same
// admin-session code path the sync engine uses, without going through the
// identity provider at all.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/scramsync/kcsync/pkg/kafkasync"
	"github.com/scramsync/kcsync/pkg/scram"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kcsyncadmin",
		Short: "Describe, upsert, or delete Kafka SCRAM credentials using kcsync's own admin session.",
	}
	cmd.AddCommand(describeCmd(), upsertCmd(), deleteCmd())
	return cmd
}

func newSession() (*kafkasync.Session, error) {
	cfg, err := kafkasync.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading KAFKA_* config: %w", err)
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return kafkasync.NewSession(cfg, log), nil
}

func describeCmd() *cobra.Command {
	var users []string
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Describe SCRAM credentials for one or more users (all users if none given).",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := newSession()
			if err != nil {
				return err
			}
			defer session.Close()

			client, err := session.Client(cmd.Context())
			if err != nil {
				return err
			}

			req := kmsg.NewDescribeUserSCRAMCredentialsRequest()
			for _, u := range users {
				req.Users = append(req.Users, kmsg.DescribeUserSCRAMCredentialsRequestUser{Name: u})
			}

			kresp, err := client.Request(cmd.Context(), &req)
			if err != nil {
				return fmt.Errorf("describe scram credentials: %w", err)
			}
			resp := kresp.(*kmsg.DescribeUserSCRAMCredentialsResponse)
			if resp.ErrorCode != 0 {
				return fmt.Errorf("%s: %s", kerr.ErrorForCode(resp.ErrorCode), stringOrEmpty(resp.ErrorMessage))
			}

			for _, res := range resp.Results {
				if res.ErrorCode != 0 {
					fmt.Printf("%s => %s: %s\n", res.User, kerr.ErrorForCode(res.ErrorCode), stringOrEmpty(res.ErrorMessage))
					continue
				}
				fmt.Printf("%s =>\n", res.User)
				for _, info := range res.CredentialInfos {
					fmt.Printf("\t%s iterations=%d\n", mechanismName(info.Mechanism), info.Iterations)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&users, "user", nil, "user to describe; repeatable, omit for all users")
	return cmd
}

func upsertCmd() *cobra.Command {
	var user, password string
	var iterations int
	var mechanisms []string
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Upsert SCRAM credentials for a single user under one or more mechanisms.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user == "" || password == "" {
				return fmt.Errorf("--user and --password are required")
			}
			mechs := make([]scram.Mechanism, 0, len(mechanisms))
			for _, m := range mechanisms {
				mechs = append(mechs, scram.Mechanism(m))
			}
			if len(mechs) == 0 {
				mechs = []scram.Mechanism{scram.SCRAMSHA256, scram.SCRAMSHA512}
			}

			session, err := newSession()
			if err != nil {
				return err
			}
			defer session.Close()

			log := zerolog.New(os.Stderr).With().Timestamp().Logger()
			executor := kafkasync.NewExecutor(session, log, iterations)
			if err := executor.UpsertSCRAM(cmd.Context(), user, password, mechs); err != nil {
				return err
			}
			fmt.Printf("upserted %v for %s\n", mechs, user)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user to upsert (required)")
	cmd.Flags().StringVar(&password, "password", "", "cleartext password to derive verifiers from (required)")
	cmd.Flags().IntVar(&iterations, "iterations", scram.MinIterations, "PBKDF2 iterations")
	cmd.Flags().StringArrayVar(&mechanisms, "mechanism", nil, "SCRAM-SHA-256 or SCRAM-SHA-512; repeatable, defaults to both")
	return cmd
}

func deleteCmd() *cobra.Command {
	var user, mechanism string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one SCRAM mechanism for a user.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user == "" || mechanism == "" {
				return fmt.Errorf("--user and --mechanism are required")
			}
			code, err := mechanismCodeFor(scram.Mechanism(mechanism))
			if err != nil {
				return err
			}

			session, err := newSession()
			if err != nil {
				return err
			}
			defer session.Close()

			client, err := session.Client(cmd.Context())
			if err != nil {
				return err
			}

			req := kmsg.NewAlterUserSCRAMCredentialsRequest()
			req.Deletions = []kmsg.AlterUserSCRAMCredentialsRequestDeletion{{Name: user, Mechanism: code}}

			kresp, err := client.Request(cmd.Context(), &req)
			if err != nil {
				return fmt.Errorf("delete scram credential: %w", err)
			}
			resp := kresp.(*kmsg.AlterUserSCRAMCredentialsResponse)
			for _, res := range resp.Results {
				if res.ErrorCode != 0 {
					return fmt.Errorf("%s: %s", res.User, kerr.ErrorForCode(res.ErrorCode))
				}
			}
			fmt.Printf("deleted %s for %s\n", mechanism, user)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user to delete a mechanism for (required)")
	cmd.Flags().StringVar(&mechanism, "mechanism", "", "SCRAM-SHA-256 or SCRAM-SHA-512 (required)")
	return cmd
}

func mechanismCodeFor(m scram.Mechanism) (int8, error) {
	switch m {
	case scram.SCRAMSHA256:
		return 1, nil
	case scram.SCRAMSHA512:
		return 2, nil
	default:
		return 0, fmt.Errorf("unknown mechanism %q", m)
	}
}

func mechanismName(code int8) string {
	switch code {
	case 1:
		return string(scram.SCRAMSHA256)
	case 2:
		return string(scram.SCRAMSHA512)
	default:
		return "UNKNOWN"
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
