package cmd

import (
	"fmt"
	"math/rand"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/hurdle/internal/browser/stealth"
)

// newProfileCmd prints generated stealth profiles, useful for checking what a
// seed produces before committing it to a config file.
func newProfileCmd() *cobra.Command {
	var seed int64
	var count int
	var locale string

	profileCmd := &cobra.Command{
		Use:               "profile",
		Short:             "Prints generated stealth profiles as JSON",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			if locale != "" && !stealth.SupportsLocale(locale) {
				return fmt.Errorf("--locale %q is not used by any consistency group", locale)
			}
			profiles := make([]stealth.Profile, count)
			for i := range profiles {
				s := seed + int64(i)
				if seed == 0 {
					s = rand.Int63()
				}
				p, err := stealth.GenerateForLocale(s, locale)
				if err != nil {
					return err
				}
				profiles[i] = p
				if err := stealth.Consistent(profiles[i]); err != nil {
					return fmt.Errorf("generated profile %d is inconsistent: %w", i, err)
				}
			}

			out, err := json.MarshalIndent(profiles, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode profiles: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	profileCmd.Flags().Int64Var(&seed, "seed", 0, "Seed for deterministic profiles; profile i uses seed+i. Zero draws random profiles.")
	profileCmd.Flags().StringVar(&locale, "locale", "", "Pin every profile to this locale, e.g. en-GB.")
	profileCmd.Flags().IntVar(&count, "count", 1, "Number of profiles to print.")
	return profileCmd
}
