package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/noah-isme/gema-antiplagiat/internal/config"
	"github.com/noah-isme/gema-antiplagiat/internal/models"
)

// Reasons and details written into reports.
const (
	ReasonEarlierSubmission      = "earlier submission to the same assignment"
	ReasonEarlierSubmissionShort = "earlier submission"
	ReasonHighTextualSimilarity  = "high textual similarity"
	DetailsNoPriorSubmissions    = "no prior submissions."
)

const (
	baselineSimilarityPercentage = 100.0
	minTokenLength               = 4
	referenceSampleText          = "lorem ipsum dolor sit amet consectetur adipiscing elit sed do eiusmod tempor incididunt ut labore et dolore magna aliqua"
)

// PriorTextFunc loads the analysable text of a prior submission.
type PriorTextFunc func(ctx context.Context, prior models.Submission) (string, error)

// CheckInput is the material for one plagiarism verdict.
type CheckInput struct {
	Submission models.Submission
	Priors     []models.Submission
	// Text is the sanitised content of Submission; empty means metadata only.
	Text string
	// PriorText is consulted in prior_content mode. A nil func or a failed load keeps the
	// baseline entry for that prior.
	PriorText PriorTextFunc
}

// CheckResult is the verdict of one check.
type CheckResult struct {
	IsPlagiarism bool
	Sources      []models.PlagiarismSource
	Details      string
}

// PlagiarismChecker decides whether a submission is presumptive plagiarism.
type PlagiarismChecker interface {
	Check(ctx context.Context, input CheckInput) (CheckResult, error)
}

type plagiarismChecker struct {
	priorLimit    int
	detailedLimit int
	threshold     float64
	compareMode   string
	reference     map[string]struct{}
}

// NewPlagiarismChecker builds the timestamp heuristic with its optional word-overlap pass.
func NewPlagiarismChecker(cfg config.PlagiarismConfig) PlagiarismChecker {
	if cfg.PriorLimit <= 0 {
		cfg.PriorLimit = 20
	}
	if cfg.DetailedLimit <= 0 {
		cfg.DetailedLimit = 3
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 30
	}
	if cfg.CompareMode == "" {
		cfg.CompareMode = config.CompareModePriorContent
	}

	return &plagiarismChecker{
		priorLimit:    cfg.PriorLimit,
		detailedLimit: cfg.DetailedLimit,
		threshold:     cfg.SimilarityThreshold,
		compareMode:   cfg.CompareMode,
		reference:     Tokenize(referenceSampleText),
	}
}

func (c *plagiarismChecker) Check(ctx context.Context, input CheckInput) (CheckResult, error) {
	if err := ctx.Err(); err != nil {
		return CheckResult{}, err
	}
	if input.Submission.ID == 0 {
		return CheckResult{}, fmt.Errorf("plagiarism check requires a stored submission")
	}

	priors := EligiblePriors(input.Submission, input.Priors, c.priorLimit)
	if len(priors) == 0 {
		return CheckResult{IsPlagiarism: false, Sources: []models.PlagiarismSource{}, Details: DetailsNoPriorSubmissions}, nil
	}

	sources := make([]models.PlagiarismSource, 0, len(priors))
	for _, prior := range priors {
		sources = append(sources, baselineSource(prior))
	}

	tokens := Tokenize(input.Text)
	if len(tokens) == 0 {
		return CheckResult{
			IsPlagiarism: true,
			Sources:      sources,
			Details:      fmt.Sprintf("%d earlier submission(s) by other students to assignment %d.", len(priors), input.Submission.AssignmentID),
		}, nil
	}

	detailed := c.detailedLimit
	if detailed > len(sources) {
		detailed = len(sources)
	}

	highest := 0.0
	compared := 0
	for i := 0; i < detailed; i++ {
		if err := ctx.Err(); err != nil {
			return CheckResult{}, err
		}

		target, ok := c.comparisonTokens(ctx, input, priors[i])
		if !ok {
			continue
		}

		score := roundPercentage(JaccardSimilarity(tokens, target))
		reason := ReasonEarlierSubmissionShort
		if score > c.threshold {
			reason = ReasonHighTextualSimilarity
		}
		sources[i].Reason = reason
		sources[i].SimilarityPercentage = score
		compared++
		if score > highest {
			highest = score
		}
	}

	return CheckResult{
		IsPlagiarism: true,
		Sources:      sources,
		Details: fmt.Sprintf("%d earlier submission(s) by other students to assignment %d; %d compared by content, highest similarity %.2f%%.",
			len(priors), input.Submission.AssignmentID, compared, highest),
	}, nil
}

func (c *plagiarismChecker) comparisonTokens(ctx context.Context, input CheckInput, prior models.Submission) (map[string]struct{}, bool) {
	if c.compareMode == config.CompareModeReferenceSample {
		return c.reference, true
	}
	if input.PriorText == nil {
		return nil, false
	}

	text, err := input.PriorText(ctx, prior)
	if err != nil {
		return nil, false
	}
	return Tokenize(text), true
}

// EligiblePriors keeps earlier submissions by other students to the same assignment,
// newest first, capped at limit.
func EligiblePriors(current models.Submission, candidates []models.Submission, limit int) []models.Submission {
	priors := make([]models.Submission, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == current.ID ||
			candidate.AssignmentID != current.AssignmentID ||
			candidate.StudentID == current.StudentID ||
			!candidate.SubmittedAt.Before(current.SubmittedAt) {
			continue
		}
		priors = append(priors, candidate)
	}

	sort.SliceStable(priors, func(i, j int) bool {
		if priors[i].SubmittedAt.Equal(priors[j].SubmittedAt) {
			return priors[i].ID > priors[j].ID
		}
		return priors[i].SubmittedAt.After(priors[j].SubmittedAt)
	})

	if limit > 0 && len(priors) > limit {
		priors = priors[:limit]
	}
	return priors
}

func baselineSource(prior models.Submission) models.PlagiarismSource {
	return models.PlagiarismSource{
		SourceWorkID:         prior.ID,
		SourceStudentID:      prior.StudentID,
		SourceSubmittedAt:    prior.SubmittedAt.UTC(),
		Reason:               ReasonEarlierSubmission,
		SimilarityPercentage: baselineSimilarityPercentage,
	}
}

// Tokenize lowercases text, treats punctuation as separators and keeps the distinct words
// longer than three characters.
func Tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make(map[string]struct{}, len(words))
	for _, word := range words {
		if len([]rune(word)) < minTokenLength {
			continue
		}
		tokens[word] = struct{}{}
	}
	return tokens
}

// JaccardSimilarity returns |a ∩ b| / |a ∪ b| as a percentage.
func JaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection

	return float64(intersection) / float64(union) * 100
}

func roundPercentage(value float64) float64 {
	return math.Round(value*100) / 100
}
