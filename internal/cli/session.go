package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/careguide/careguide-go/internal/store"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or reset the cached agent session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cached session descriptor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := store.Open(cfg.SessionCachePath)
		if err != nil {
			return err
		}
		defer cache.Close()

		// A year-long ceiling shows even sessions the chat would not resume.
		desc, ok, err := cache.Load(365 * 24 * time.Hour)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("No cached session.")
			return nil
		}

		fmt.Printf("Session:  %s\n", desc.SessionID)
		fmt.Printf("Agent:    %s\n", desc.AgentID)
		fmt.Printf("Profile:  %s\n", desc.Profile)
		fmt.Printf("Offset:   %d\n", desc.LastOffset)
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the cached session so the next chat starts fresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := store.Open(cfg.SessionCachePath)
		if err != nil {
			return err
		}
		defer cache.Close()

		if err := cache.Clear(); err != nil {
			return err
		}
		fmt.Println("Session cache cleared.")
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionClearCmd)
}
