package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreworld/explorer/config"
	"github.com/coreworld/explorer/identity"
)

// LoginCmd produces and caches a previous-login record (§6
// "Environment at boot... optional previous login"). The wallet signature
// over the login challenge is produced externally (§1 scopes wallet
// cryptography out); this command only generates the session's ephemeral
// keypair and persists it alongside the caller-supplied address and auth
// chain, the same split the server/nodedid.Handler draws between
// "generate and persist a keypair" and "prove who signed it".
var LoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Produce and cache a previous-login record",
	Long: `login generates a fresh ephemeral signing key for this session and
caches it, together with the wallet address and auth chain produced by an
external wallet signer, at the configured login cache path. 'run' does not
read this cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addrFlag, _ := cmd.Flags().GetString("address")
		authChain, _ := cmd.Flags().GetString("auth-chain")
		if addrFlag == "" {
			return fmt.Errorf("--address is required")
		}

		addr, err := identity.Parse(addrFlag)
		if err != nil {
			return fmt.Errorf("parse address: %w", err)
		}

		pub, priv, err := identity.GenerateEphemeralKey()
		if err != nil {
			return fmt.Errorf("generate ephemeral key: %w", err)
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		login := &identity.PreviousLogin{
			Address:       addr,
			EphemeralPub:  pub,
			EphemeralPriv: priv,
			AuthChainJSON: authChain,
		}
		if err := identity.SavePreviousLogin(cfg.Login.CachePath, login); err != nil {
			return fmt.Errorf("save login cache: %w", err)
		}

		fmt.Printf("cached previous login for %s at %s\n", addr, cfg.Login.CachePath)
		return nil
	},
}

func init() {
	LoginCmd.Flags().String("address", "", "wallet address (base58) this session authenticates as")
	LoginCmd.Flags().String("auth-chain", "[]", "auth chain JSON produced by an external wallet signer")
}
