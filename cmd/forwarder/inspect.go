package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
	"github.com/devricklin/keyword-forwarder/internal/biz/repo"
	"github.com/devricklin/keyword-forwarder/internal/conf"
	"github.com/devricklin/keyword-forwarder/internal/data"
)

func newStatsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print forwarded record counts and the latest records as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, store, err := openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := buildStats(ctx, store, cfg.Forward.SourceChatIDs, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Recent records listed per source")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <text>",
		Short: "Show how a text is normalized, fingerprinted and matched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, store, err := openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := checkText(ctx, store, cfg.Matcher(), cfg.Forward.SourceChatIDs, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

type recordView struct {
	Fingerprint string    `json:"fingerprint"`
	MessageID   string    `json:"message_id"`
	ForwardedAt time.Time `json:"forwarded_at"`
}

type statsReport struct {
	Total   int64                   `json:"total"`
	Sources map[string][]recordView `json:"sources"`
}

func buildStats(ctx context.Context, store repo.FingerprintRepo, sources []string, limit int) (*statsReport, error) {
	total, err := store.Count(ctx)
	if err != nil {
		return nil, err
	}

	report := &statsReport{Total: total, Sources: make(map[string][]recordView)}
	for _, sourceID := range sources {
		records, err := store.ListRecent(ctx, sourceID, limit)
		if err != nil {
			return nil, err
		}
		views := make([]recordView, 0, len(records))
		for _, rec := range records {
			views = append(views, recordView{
				Fingerprint: rec.Fingerprint.String(),
				MessageID:   rec.MessageID,
				ForwardedAt: rec.ForwardedAt,
			})
		}
		report.Sources[sourceID] = views
	}
	return report, nil
}

type checkReport struct {
	Normalized  string   `json:"normalized"`
	Fingerprint string   `json:"fingerprint"`
	Matched     bool     `json:"matched"`
	Keyword     string   `json:"keyword,omitempty"`
	MatchMode   string   `json:"match_mode"`
	ForwardedIn []string `json:"forwarded_in"`
}

func checkText(ctx context.Context, store repo.FingerprintRepo, matcher *domain.KeywordMatcher, sources []string, text string) (*checkReport, error) {
	normalized := domain.Normalize(text)
	fp := domain.FingerprintOf(normalized)

	report := &checkReport{
		Normalized:  normalized,
		Fingerprint: fp.String(),
		MatchMode:   string(matcher.Mode()),
		ForwardedIn: []string{},
	}
	report.Keyword, report.Matched = matcher.Match(normalized)

	for _, sourceID := range sources {
		exists, err := store.Exists(ctx, sourceID, fp)
		if err != nil {
			return nil, err
		}
		if exists {
			report.ForwardedIn = append(report.ForwardedIn, sourceID)
		}
	}
	return report, nil
}

// openStore opens only the fingerprint store; no Feishu credentials needed
func openStore(ctx context.Context, cmd *cobra.Command) (*conf.Config, repo.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	store, err := data.NewStore(ctx, cfg.ToStoreOptions())
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
