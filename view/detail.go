package view

import (
	"strconv"
	"strings"

	"resolution-dashboard/analytics"
	"resolution-dashboard/format"
	"resolution-dashboard/models"
)

// bondDecimals is the token precision of bonds and rewards (USDC).
const bondDecimals = 6

// Field is a labelled value in a detail section.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Mono  bool   `json:"mono,omitempty"`
	Block bool   `json:"block,omitempty"`
}

// RunSummary is one entry of the runs list.
type RunSummary struct {
	Run            int    `json:"run"`
	Timestamp      string `json:"timestamp"`
	Recommendation string `json:"recommendation"`
	Result         string `json:"result"`
	File           string `json:"file,omitempty"`
	Canonical      bool   `json:"canonical"`
}

// StepView is one journey step shaped for its actor.
type StepView struct {
	Index     int     `json:"index"`
	Actor     string  `json:"actor"`
	Action    string  `json:"action"`
	Timestamp string  `json:"timestamp"`
	Fields    []Field `json:"fields"`
}

// SolverView summarizes a solver attempt.
type SolverView struct {
	Solver         string `json:"solver"`
	Recommendation string `json:"recommendation"`
	Success        string `json:"success"`
	Response       string `json:"response"`
}

// Detail is the view-model of a single record.
type Detail struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Result        string       `json:"result"`
	ResultClass   string       `json:"result_class"`
	Overview      []Field      `json:"overview"`
	Runs          []RunSummary `json:"runs"`
	Journey       []StepView   `json:"journey"`
	Solvers       []SolverView `json:"solvers"`
	Overseer      []Field      `json:"overseer"`
	Metadata      []Field      `json:"metadata"`
	MarketData    []Field      `json:"market_data"`
	RawJSON       string       `json:"raw_json"`
	FormatVersion int          `json:"format_version"`
}

// BuildDetail renders the multi-section detail view of a canonical record.
func BuildDetail(r *models.Record) Detail {
	c := analytics.Classify(r)
	res, _ := r.Resolution()

	d := Detail{
		ID:            r.LogicalID(),
		Title:         r.Title(),
		Result:        format.Correctness(analytics.IsCorrect(r)),
		ResultClass:   "result-" + c.String(),
		RawJSON:       format.PrettyJSON(r.Raw),
		FormatVersion: int(r.Format()),
	}

	d.Overview = nonEmpty([]Field{
		{Label: "Query ID", Value: r.QueryID, Mono: true},
		{Label: "Question ID", Value: r.QuestionID, Mono: true},
		{Label: "Document ID", Value: string(r.DocumentID), Mono: true},
		{Label: "Short ID", Value: r.ShortID, Mono: true},
		{Label: "Recommendation", Value: format.Outcome(r.Recommendation())},
		{Label: "Resolved outcome", Value: format.Outcome(res)},
		{Label: "Processed", Value: format.Timestamp(r.Timestamp())},
		{Label: "Tags", Value: format.Tags(r.Tags())},
		{Label: "Disputed", Value: format.Bool(r.Disputed())},
		{Label: "Reason", Value: r.ReasonText(), Block: true},
		{Label: "Source file", Value: r.FileName(), Mono: true},
	})

	d.Runs = runSummaries(r)
	d.Journey = journeyViews(r.Journey)
	d.Solvers = solverViews(r)
	d.Overseer = overseerFields(r)
	d.Metadata = proposalFields(r.ProposalMetadata)
	d.MarketData = marketFields(r.MarketData)
	return d
}

func runSummaries(r *models.Record) []RunSummary {
	runs := r.AllRuns
	if len(runs) == 0 {
		runs = []*models.Record{r}
	}
	out := make([]RunSummary, len(runs))
	for i, run := range runs {
		out[i] = RunSummary{
			Run:            run.Run,
			Timestamp:      format.Timestamp(run.Timestamp()),
			Recommendation: format.Outcome(run.Recommendation()),
			Result:         format.Correctness(analytics.IsCorrect(run)),
			File:           run.FileName(),
			Canonical:      run == r,
		}
	}
	return out
}

func journeyViews(steps []models.JourneyStep) []StepView {
	out := make([]StepView, 0, len(steps))
	for i, s := range steps {
		v := StepView{
			Index:     i + 1,
			Actor:     s.Actor,
			Action:    s.Action,
			Timestamp: format.Timestamp(s.Timestamp),
		}
		if s.Step.Valid {
			v.Index = s.Step.N
		}

		var fields []Field
		switch s.Actor {
		case models.ActorRouter:
			fields = []Field{
				{Label: "Selected solvers", Value: strings.Join(s.Solvers, ", ")},
				{Label: "Reason", Value: s.Reason, Block: true},
				{Label: "Prompt", Value: s.Prompt, Block: true},
				{Label: "Response", Value: string(s.Response), Block: true},
			}
		case models.ActorPerplexity:
			fields = []Field{
				{Label: "System prompt", Value: s.SystemPrompt, Block: true},
				{Label: "Prompt", Value: s.Prompt, Block: true},
				{Label: "Response", Value: string(s.Response), Block: true},
				{Label: "Recommendation", Value: format.Outcome(string(s.Recommendation))},
			}
		case models.ActorCodeRunner:
			fields = []Field{
				{Label: "Code", Value: s.Code, Block: true, Mono: true},
				{Label: "Output", Value: s.CodeOutput, Block: true, Mono: true},
				{Label: "Recommendation", Value: format.Outcome(string(s.Recommendation))},
			}
		case models.ActorOverseer:
			fields = []Field{
				{Label: "Verdict", Value: s.Verdict},
				{Label: "Require rerun", Value: format.Bool(bool(s.RequireRerun))},
				{Label: "Critique", Value: s.Critique, Block: true},
				{Label: "Prompt", Value: s.Prompt, Block: true},
				{Label: "Response", Value: string(s.Response), Block: true},
			}
		default:
			fields = []Field{
				{Label: "Prompt", Value: s.Prompt, Block: true},
				{Label: "Response", Value: string(s.Response), Block: true},
			}
		}
		if len(s.Metadata) > 0 {
			fields = append(fields, Field{Label: "Metadata", Value: format.Nested(s.Metadata), Block: true, Mono: true})
		}
		v.Fields = nonEmpty(fields)
		out = append(out, v)
	}
	return out
}

func solverViews(r *models.Record) []SolverView {
	var out []SolverView
	for _, s := range r.Solvers() {
		out = append(out, SolverView{
			Solver:         s.Solver,
			Recommendation: format.Outcome(string(s.Recommendation)),
			Success:        format.Bool(bool(s.Success)),
			Response:       string(s.Response),
		})
	}
	if len(out) > 0 {
		return out
	}
	// older files only record solver output as journey steps
	for _, s := range r.Journey {
		if s.Actor != models.ActorPerplexity && s.Actor != models.ActorCodeRunner {
			continue
		}
		resp := string(s.Response)
		if s.Actor == models.ActorCodeRunner {
			resp = s.CodeOutput
		}
		out = append(out, SolverView{
			Solver:         s.Actor,
			Recommendation: format.Outcome(string(s.Recommendation)),
			Success:        format.Missing,
			Response:       resp,
		})
	}
	return out
}

func overseerFields(r *models.Record) []Field {
	if o := r.OverseerResult(); o != nil {
		return nonEmpty([]Field{
			{Label: "Decision", Value: string(o.Decision)},
			{Label: "Verdict", Value: o.Verdict},
			{Label: "Recommendation", Value: format.Outcome(string(o.Recommendation))},
			{Label: "Require rerun", Value: format.Bool(bool(o.RequireRerun))},
			{Label: "Critique", Value: o.Critique, Block: true},
			{Label: "Prompt update", Value: o.PromptUpdate, Block: true},
		})
	}
	// the last overseer step is the final evaluation
	for i := len(r.Journey) - 1; i >= 0; i-- {
		s := r.Journey[i]
		if s.Actor == models.ActorOverseer {
			return nonEmpty([]Field{
				{Label: "Verdict", Value: s.Verdict},
				{Label: "Require rerun", Value: format.Bool(bool(s.RequireRerun))},
				{Label: "Critique", Value: s.Critique, Block: true},
			})
		}
	}
	return nil
}

func proposalFields(p *models.ProposalMetadata) []Field {
	if p == nil {
		return nil
	}
	block := ""
	if p.BlockNumber.Valid {
		block = strconv.Itoa(p.BlockNumber.N)
	}
	fields := []Field{
		{Label: "Transaction", Value: format.ShortHash(p.TransactionHash), Mono: true},
		{Label: "Block", Value: block},
		{Label: "Requested", Value: timestampOrEmpty(p.RequestTimestamp)},
		{Label: "Expires", Value: timestampOrEmpty(p.ExpirationTimestamp)},
		{Label: "Proposer", Value: shortAddressOrEmpty(p.Proposer), Mono: true},
		{Label: "Requester", Value: shortAddressOrEmpty(p.Requester), Mono: true},
		{Label: "Bond", Value: bondOrEmpty(p.Bond)},
		{Label: "Reward", Value: bondOrEmpty(p.Reward)},
		{Label: "Proposed price", Value: string(p.ProposedPrice)},
		{Label: "Disputed", Value: format.Bool(bool(p.Disputed))},
		{Label: "Ancillary data", Value: p.AncillaryData, Block: true},
	}
	if len(p.Tokens) > 0 {
		fields = append(fields, Field{Label: "Tokens", Value: format.NestedJSON(p.Tokens), Block: true, Mono: true})
	}
	return nonEmpty(fields)
}

func marketFields(m *models.MarketData) []Field {
	if m == nil {
		return nil
	}
	fields := []Field{
		{Label: "Question", Value: m.Question},
		{Label: "Condition ID", Value: format.ShortHash(m.ConditionID), Mono: true},
		{Label: "End date", Value: timestampOrEmpty(m.EndDate)},
		{Label: "Volume", Value: string(m.Volume)},
		{Label: "Disputed", Value: format.Bool(bool(m.Disputed))},
		{Label: "Tags", Value: strings.Join(m.Tags, ", ")},
	}
	if len(m.Tokens) > 0 {
		fields = append(fields, Field{Label: "Tokens", Value: format.NestedJSON(m.Tokens), Block: true, Mono: true})
	}
	return nonEmpty(fields)
}

func timestampOrEmpty(ts models.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return format.Timestamp(ts)
}

func shortAddressOrEmpty(a string) string {
	if a == "" {
		return ""
	}
	return format.ShortAddress(a)
}

func bondOrEmpty(s models.Scalar) string {
	if s == "" {
		return ""
	}
	return format.Bond(s, bondDecimals)
}

// nonEmpty drops fields without a value.
func nonEmpty(fields []Field) []Field {
	out := fields[:0]
	for _, f := range fields {
		if v := strings.TrimSpace(f.Value); v != "" && v != format.Missing {
			out = append(out, f)
		}
	}
	return out
}
