package commands

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/onyx-dev/onyx-database-go/pkg/config"
)

// ask is swapped in tests.
var ask = survey.Ask

func newInitCommand(g *globalFlags) *cobra.Command {
	var (
		path  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a credentials file",
		Long:  "Prompt for database credentials and store them under ~/.onyx",
		RunE: func(cmd *cobra.Command, args []string) error {
			values := config.FileValues{
				DatabaseID: g.databaseID,
				BaseURL:    g.baseURL,
				APIKey:     g.apiKey,
				APISecret:  g.apiSecret,
			}
			if err := promptMissing(&values); err != nil {
				return err
			}

			target := path
			if target == "" {
				var err error
				if target, err = config.DefaultProfilePath(values.DatabaseID); err != nil {
					return err
				}
			}
			if exists, _ := afero.Exists(config.AppFs, target); exists && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", target)
			}
			if err := config.WriteFile(config.AppFs, target, values); err != nil {
				return err
			}
			newResolver().Invalidate()
			printer(cmd).Success("Wrote credentials to %s", target)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "file to write (default ~/.onyx/onyx-database-<id>.json)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func promptMissing(v *config.FileValues) error {
	var qs []*survey.Question
	if v.DatabaseID == "" {
		qs = append(qs, &survey.Question{
			Name:     "databaseId",
			Prompt:   &survey.Input{Message: "Database id:"},
			Validate: survey.Required,
		})
	}
	if v.BaseURL == "" {
		qs = append(qs, &survey.Question{
			Name:   "baseUrl",
			Prompt: &survey.Input{Message: "Base URL:", Default: config.DefaultBaseURL},
		})
	}
	if v.APIKey == "" {
		qs = append(qs, &survey.Question{
			Name:     "apiKey",
			Prompt:   &survey.Input{Message: "API key:"},
			Validate: survey.Required,
		})
	}
	if v.APISecret == "" {
		qs = append(qs, &survey.Question{
			Name:     "apiSecret",
			Prompt:   &survey.Password{Message: "API secret:"},
			Validate: survey.Required,
		})
	}
	if len(qs) == 0 {
		return nil
	}

	answers := struct {
		DatabaseID string `survey:"databaseId"`
		BaseURL    string `survey:"baseUrl"`
		APIKey     string `survey:"apiKey"`
		APISecret  string `survey:"apiSecret"`
	}{}
	if err := ask(qs, &answers); err != nil {
		return err
	}
	if v.DatabaseID == "" {
		v.DatabaseID = answers.DatabaseID
	}
	if v.BaseURL == "" && answers.BaseURL != config.DefaultBaseURL {
		v.BaseURL = answers.BaseURL
	}
	if v.APIKey == "" {
		v.APIKey = answers.APIKey
	}
	if v.APISecret == "" {
		v.APISecret = answers.APISecret
	}
	return nil
}
