package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/policy"
)

type evaluateOptions struct {
	classification string
	copies         int
	copiesToday    int
	pages          int
	color          bool
	attemptsToday  int
	pagesToday     int
	similarity     float64
	exempt         bool

	maxAttempts int
	maxCopies   int
	maxPages    int
	dailyQuota  int
	allowColor  bool
}

type evaluateResult struct {
	Allowed            bool                     `yaml:"allowed"`
	Reason             string                   `yaml:"reason,omitempty"`
	Details            map[string]int           `yaml:"details,omitempty"`
	EscalationEligible bool                     `yaml:"escalationEligible"`
	Warning            *policy.DuplicateWarning `yaml:"warning,omitempty"`
}

func newEvaluateCmd() *cobra.Command {
	opts := evaluateOptions{}
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Dry-run the print rules against hypothetical usage and limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			decision, err := policy.Evaluate(opts.input(cmd))
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(evaluateResult{
				Allowed:            decision.Allowed,
				Reason:             string(decision.Reason),
				Details:            detailsMap(decision.Details),
				EscalationEligible: decision.EscalationEligible,
				Warning:            decision.Warning,
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.classification, "classification", string(models.ClassificationOfficial), "official|personal|confidential")
	f.IntVar(&opts.copies, "copies", 1, "requested copies")
	f.IntVar(&opts.copiesToday, "copies-today", 0, "copies of the same document already printed today")
	f.IntVar(&opts.pages, "pages", 1, "pages in the document")
	f.BoolVar(&opts.color, "color", false, "colour printing")
	f.IntVar(&opts.attemptsToday, "attempts-today", 0, "print attempts already used today")
	f.IntVar(&opts.pagesToday, "pages-today", 0, "pages already printed today")
	f.Float64Var(&opts.similarity, "similarity", 0, "classifier duplicate similarity percent")
	f.BoolVar(&opts.exempt, "exempt", false, "print released by an approved request")
	f.IntVar(&opts.maxAttempts, "max-attempts", 5, "policy max attempts per day")
	f.IntVar(&opts.maxCopies, "max-copies", 3, "policy max copies per document")
	f.IntVar(&opts.maxPages, "max-pages", 0, "policy max pages per job, unset when 0")
	f.IntVar(&opts.dailyQuota, "daily-quota", 0, "policy daily page quota, unset when 0")
	f.BoolVar(&opts.allowColor, "allow-color", true, "policy allows colour printing")
	return cmd
}

func (o evaluateOptions) input(cmd *cobra.Command) policy.Input {
	rule := models.PolicyRule{Scope: models.PolicyScopeGlobal, MaxAttemptsPerDay: o.maxAttempts, MaxCopiesPerDoc: o.maxCopies}
	if o.maxPages > 0 {
		rule.MaxPagesPerJob = models.IntPtr(o.maxPages)
	}
	if o.dailyQuota > 0 {
		rule.DailyQuota = models.IntPtr(o.dailyQuota)
	}
	if cmd.Flags().Changed("allow-color") {
		allow := o.allowColor
		rule.AllowColorPrinting = &allow
	}
	return policy.Input{
		Classification:      models.Classification(o.classification),
		RequestedCopies:     o.copies,
		CopiesToday:         o.copiesToday,
		RequestedPages:      o.pages,
		Color:               o.color,
		Usage:               policy.Usage{AttemptsToday: o.attemptsToday, PagesToday: o.pagesToday},
		Policy:              rule,
		DuplicateSimilarity: o.similarity,
		Exempt:              o.exempt,
	}
}

func detailsMap(d models.BlockDetails) map[string]int {
	out := map[string]int{}
	for key, v := range map[string]*int{"used": d.Used, "limit": d.Limit, "requested": d.Requested, "max": d.Max} {
		if v != nil {
			out[key] = *v
		}
	}
	return out
}
