package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/liamcoop/wisepay/internal/config"
	"github.com/liamcoop/wisepay/payments"
	"github.com/liamcoop/wisepay/requirements"
	"github.com/liamcoop/wisepay/rules"
	"github.com/liamcoop/wisepay/schema"
	"github.com/liamcoop/wisepay/wise"
	"github.com/spf13/cobra"
)

var stdOutWriter io.Writer = os.Stdout

// errInvalidRecord makes validate exit non-zero after printing the errors.
var errInvalidRecord = errors.New("record is invalid")

func main() {
	if err := createRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func createRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "wiseform",
		Short:         "Inspect recipient requirements, validate recipient records and generate examples.",
		SilenceUsage:  true,
		SilenceErrors: false,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}
	root.SetOut(stdOutWriter)
	root.AddCommand(parseCommand(), validateCommand(), exampleCommand(), qrCommand(), fetchCommand())
	return root
}

func parseCommand() *cobra.Command {
	var recipientType string
	cmd := &cobra.Command{
		Use:   "parse [descriptor.json]",
		Short: "Prints the normalized field constraints of a recipient type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadRequirementSet(cmd, args[0], recipientType)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), set)
		},
	}
	cmd.Flags().StringVar(&recipientType, "type", "", "Recipient type, the first one in the descriptor when empty")
	return cmd
}

func validateCommand() *cobra.Command {
	var recipientType string
	var withRules bool
	cmd := &cobra.Command{
		Use:   "validate [descriptor.json] [record.json]",
		Short: "Validates a recipient record and prints the normalized record or every field error",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := loadSchema(cmd, args[0], recipientType)
			if err != nil {
				return err
			}
			rec, err := loadRecord(args[1])
			if err != nil {
				return err
			}

			res := cs.Validate(rec)
			if withRules {
				engine, err := rules.NewEngine(rules.NewInMemoryRuleStore())
				if err != nil {
					return err
				}
				if err := engine.Seed(rules.DefaultRules()); err != nil {
					return err
				}
				violations, err := engine.Violations(cs.Type(), rec)
				if err != nil {
					return err
				}
				if len(violations) > 0 {
					res.Errors = append(res.Errors, violations...)
					res.Record = nil
				}
			}

			if !res.OK() {
				for _, fe := range res.Errors {
					cmd.Printf("%s\t%s\t%s\n", fe.Key, fe.Kind, fe.Message)
				}
				return errInvalidRecord
			}
			return printJSON(cmd.OutOrStdout(), schema.Expand(res.Record))
		},
	}
	cmd.Flags().StringVar(&recipientType, "type", "", "Recipient type, the first one in the descriptor when empty")
	cmd.Flags().BoolVar(&withRules, "rules", true, "Also apply the built-in cross-field rules")
	return cmd
}

func exampleCommand() *cobra.Command {
	var recipientType string
	var optional, flat bool
	cmd := &cobra.Command{
		Use:   "example [descriptor.json]",
		Short: "Generates a recipient record that passes validation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := loadSchema(cmd, args[0], recipientType)
			if err != nil {
				return err
			}
			rec, gaps := cs.GenerateReport(schema.GenerateOptions{IncludeOptional: optional})
			for _, g := range gaps {
				cmd.PrintErrf("warning: %s: generated %q does not match %s\n", g.Key, g.Value, g.Pattern)
			}
			if flat {
				return printJSON(cmd.OutOrStdout(), rec)
			}
			return printJSON(cmd.OutOrStdout(), schema.Expand(rec))
		},
	}
	cmd.Flags().StringVar(&recipientType, "type", "", "Recipient type, the first one in the descriptor when empty")
	cmd.Flags().BoolVar(&optional, "optional", false, "Include optional fields")
	cmd.Flags().BoolVar(&flat, "flat", false, "Print dotted keys instead of nested objects")
	return cmd
}

func qrCommand() *cobra.Command {
	var png bool
	cmd := &cobra.Command{
		Use:   "qr [text]",
		Short: "Prints text as a QR code, e.g. a payment link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if png {
				url, err := payments.QRDataURL(args[0])
				if err != nil {
					return err
				}
				cmd.Println(url)
				return nil
			}
			payments.PrintQR(cmd.OutOrStdout(), args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&png, "png", false, "Print a PNG data URL instead of terminal blocks")
	return cmd
}

func fetchCommand() *cobra.Command {
	var corridor wise.Corridor
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetches the requirements descriptor of a corridor from the provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			corridor = corridor.Normalize()
			if err := corridor.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Wise.Timeout+5*time.Second)
			defer cancel()
			client := wise.NewClient(cfg.Wise.BaseURL, cfg.Wise.Token, cfg.Wise.ProfileID)
			doc, err := client.FetchRequirements(ctx, corridor)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVar(&corridor.Source, "source", "", "Source currency")
	cmd.Flags().StringVar(&corridor.Target, "target", "", "Target currency")
	cmd.Flags().Float64Var(&corridor.Amount, "amount", 0, "Source amount")
	cmd.Flags().AddFlagSet(config.FlagSet())
	return cmd
}

func loadRequirementSet(cmd *cobra.Command, path, recipientType string) (*requirements.RequirementSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := requirements.Decode(f)
	if err != nil {
		return nil, err
	}
	if recipientType == "" && len(doc.Requirements) > 0 {
		recipientType = doc.Requirements[0].Type
	}
	if recipientType != "" {
		if doc, err = doc.Select(recipientType); err != nil {
			return nil, err
		}
	}

	parser := requirements.NewParser(
		requirements.WithConflictWarnings(),
		requirements.WithWarningHandler(func(w requirements.Warning) {
			cmd.PrintErrln("warning:", w.String())
		}),
	)
	return parser.Parse(doc)
}

func loadSchema(cmd *cobra.Command, path, recipientType string) (*schema.CompiledSchema, error) {
	set, err := loadRequirementSet(cmd, path, recipientType)
	if err != nil {
		return nil, err
	}
	return schema.Compile(set)
}

// loadRecord reads a nested or flat JSON record.
func loadRecord(path string) (schema.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", path, err)
	}
	return schema.Flatten(m)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
