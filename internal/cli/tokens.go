package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmirchev92/stp/internal/accesstoken"
	"github.com/dmirchev92/stp/internal/auth"
	"github.com/dmirchev92/stp/internal/handlers"
)

func newOwnerTokenCmd(e *env) *cobra.Command {
	var (
		ownerID string
		name    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "owner-token",
		Short: "Mint an owner JWT",
		Long: `Mint an owner JWT signed with auth.jwt_secret. Owners normally
authenticate through the surrounding application; this is for
collaborators and local development.

Examples:
  stpctl owner-token --owner 0b6f3c9e-2d4a-4f1e-9a7b-1c2d3e4f5a6b
  stpctl owner-token --owner 0b6f3c9e-2d4a-4f1e-9a7b-1c2d3e4f5a6b --name Dana --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := uuid.Parse(strings.TrimSpace(ownerID)); err != nil {
				return fmt.Errorf("--owner must be a uuid: %w", err)
			}
			if ttl <= 0 {
				ttl = e.runtime.OwnerSessionTTL
			}
			token, expiresAt, err := auth.GenerateOwnerToken(ownerID, name, e.runtime.JwtSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, token)
			e.log.Debug("owner token minted", "owner_id", ownerID, "expires_at", expiresAt)
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id (uuid)")
	cmd.Flags().StringVar(&name, "name", "", "display name carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.owner_session_ttl)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newIssueCmd(e *env) *cobra.Command {
	var (
		ownerID string
		fresh   bool
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Print the owner's current contact link",
		Long: `Print the owner's current contact link, issuing a token when none is usable.

Examples:
  stpctl issue --owner 0b6f3c9e-2d4a-4f1e-9a7b-1c2d3e4f5a6b
  stpctl issue --owner 0b6f3c9e-2d4a-4f1e-9a7b-1c2d3e4f5a6b --new`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := e.openServices(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			var tok accesstoken.Token
			if fresh {
				tok, err = svc.tokens.Issue(ctx, ownerID)
			} else {
				tok, err = svc.tokens.CurrentFor(ctx, ownerID)
			}
			if err != nil {
				return err
			}
			publicID, err := svc.publicIDs.ResolvePublicID(ctx, tok.OwnerID)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s\nexpires %s\n", handlers.BuildLink(e.runtime.PublicHost, publicID, tok.Value), tok.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id (uuid)")
	cmd.Flags().BoolVar(&fresh, "new", false, "always issue a new token")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
