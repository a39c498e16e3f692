package main

import (
	"crypto/rand"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/wager-server-go/internal/game"
	"github.com/openclaw/wager-server-go/internal/model"
	"github.com/openclaw/wager-server-go/internal/util"
)

func NonceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nonce",
		Short: "Print a fresh 256-bit nonce for a commitment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := game.RandomNonce(rand.Reader)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n.String())
			return nil
		},
	}
}

func CommitmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commitment <choice> <nonce> <player-id>",
		Short: "Compute the commitment to submit before revealing",
		Args:  cobra.ExactArgs(3),
		RunE:  commitment,
	}
	cmd.Flags().Bool("verify", false, "check the result against --expected instead of printing it")
	cmd.Flags().String("expected", "", "hex commitment to verify against")
	return cmd
}

func commitment(cmd *cobra.Command, args []string) error {
	choice, err := model.ParseChoice(args[0])
	if err != nil {
		return err
	}
	nonce, err := game.ParseNonce(args[1])
	if err != nil {
		return err
	}
	player := args[2]

	verify, _ := cmd.Flags().GetBool("verify")
	if !verify {
		fmt.Fprintln(cmd.OutOrStdout(), game.Commit(choice, nonce, player).String())
		return nil
	}

	expected, _ := cmd.Flags().GetString("expected")
	stored, err := game.ParseCommitment(expected)
	if err != nil {
		return err
	}
	if !game.Verify(stored, choice, nonce, player) {
		return fmt.Errorf("commitment does not match")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func HashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := util.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
