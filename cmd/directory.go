package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dayuer/chatgw/internal/channels"
	"github.com/dayuer/chatgw/internal/directory"
)

var (
	lookupChannel string
	lookupVendor  string
	lookupContact string
	deleteContact string
)

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Inspect and repair participant records",
}

var directoryLookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Find a participant by channel and vendor id, or by contact id",
	RunE:  runDirectoryLookup,
}

var directoryDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a participant so the next message starts a new chat",
	RunE:  runDirectoryDelete,
}

func init() {
	directoryLookupCmd.Flags().StringVar(&lookupChannel, "channel", "", "channel name (sms, facebook, whatsapp, instagram, zalo, wechat)")
	directoryLookupCmd.Flags().StringVar(&lookupVendor, "vendor", "", "vendor-side user id")
	directoryLookupCmd.Flags().StringVar(&lookupContact, "contact", "", "contact id")
	directoryDeleteCmd.Flags().StringVar(&deleteContact, "contact", "", "contact id")
	_ = directoryDeleteCmd.MarkFlagRequired("contact")

	directoryCmd.AddCommand(directoryLookupCmd, directoryDeleteCmd)
	rootCmd.AddCommand(directoryCmd)
}

// openDirectory opens the configured store. No contact center is needed to
// read or delete records.
func openDirectory(ctx context.Context) (directory.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, _, err := a.directoryStore(ctx)
	if err != nil {
		a.shutdown()
		return nil, nil, err
	}
	return store, a.shutdown, nil
}

func runDirectoryLookup(cmd *cobra.Command, args []string) error {
	if lookupContact == "" && (lookupChannel == "" || lookupVendor == "") {
		return fmt.Errorf("either --contact or both --channel and --vendor are required")
	}
	ctx := cmd.Context()
	store, done, err := openDirectory(ctx)
	if err != nil {
		return err
	}
	defer done()

	var p directory.Participant
	if lookupContact != "" {
		p, err = store.Get(ctx, lookupContact)
	} else {
		ch, perr := channels.ParseChannel(lookupChannel)
		if perr != nil {
			return perr
		}
		p, err = store.LookupByVendor(ctx, ch, lookupVendor)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"contactId": p.ContactID,
		"channel":   p.Channel,
		"vendorId":  p.VendorID,
		"connected": p.ConnectionToken != "",
		"expiresAt": p.ExpiresAt,
	})
}

func runDirectoryDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, done, err := openDirectory(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := store.Delete(ctx, deleteContact); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", deleteContact)
	return nil
}
