package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/phantom/internal/profiles"
)

func newProfilesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List session profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openProfiles(*configPath)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCOMMAND\tSANDBOX")
			for _, p := range reg.List() {
				command := p.Command
				if command == "" {
					command = "(shell)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", p.ID, p.Name, command, p.Sandbox)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a profile as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openProfiles(*configPath)
			if err != nil {
				return err
			}
			p, ok := reg.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", profiles.ErrNotFound, args[0])
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(p); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cmd
}

func openProfiles(configPath string) (*profiles.Registry, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	reg, err := profiles.NewRegistry(cfg.ProfilesDir)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	return reg, nil
}
