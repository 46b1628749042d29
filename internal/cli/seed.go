package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ryandotelliott/dead-internet/internal/profile"
)

// seedFile is the YAML layout accepted by seed.
type seedFile struct {
	Personas []seedPersona `yaml:"personas"`
}

type seedPersona struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Summary  string `yaml:"summary"`
	Category string `yaml:"category"`
	// Context seeds generation when name or summary is left out.
	Context string `yaml:"context"`
}

func readSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// seedPersonas creates the personas of f. Entries with a name and summary
// are stored ready; the rest are left to the persona generator.
func (s *session) seedPersonas(ctx context.Context, f *seedFile) ([]*profile.Profile, error) {
	var out []*profile.Profile
	for _, sp := range f.Personas {
		p, err := s.svc.Directory.EnsureProfile(ctx, sp.Email, sp.Context)
		if err != nil {
			return out, fmt.Errorf("%s: %w", sp.Email, err)
		}
		if !p.IsPersona() {
			s.logger.WarnContext(ctx, "Seed address belongs to a human, skipping", "email", p.Email)
			continue
		}
		if sp.Name != "" && sp.Summary != "" {
			fields := profile.PersonaFields{
				Name:     sp.Name,
				Summary:  sp.Summary,
				Category: profile.ParseCategory(sp.Category),
			}
			if err := s.svc.Stores.Profiles.SetPersona(ctx, p.ID, fields, time.Now().UTC()); err != nil {
				return out, fmt.Errorf("%s: %w", sp.Email, err)
			}
			p.Name, p.PersonaSummary, p.PersonaCategory = fields.Name, fields.Summary, fields.Category
			p.PersonaState = profile.PersonaReady
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *runner) seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create personas from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readSeedFile(file)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := r.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			seeded, err := s.seedPersonas(ctx, f)
			if err != nil {
				return err
			}
			s.settle(ctx)
			for _, p := range seeded {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", p.ID, p.Email, p.PersonaState)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "persona YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
