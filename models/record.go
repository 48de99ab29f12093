package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// FormatVersion tags the layout of a result file.
type FormatVersion int

const (
	FormatLegacy FormatVersion = 1 // flat fields at the root
	FormatV2     FormatVersion = 2 // nested result / market_data sections
)

// Record is one resolution attempt for a market question, as stored in a
// result file or returned by the results backend.
type Record struct {
	QueryID    string   `json:"query_id,omitempty"`
	QuestionID string   `json:"question_id,omitempty"`
	DocumentID ObjectID `json:"_id,omitempty"`
	ShortID    string   `json:"short_id,omitempty"`

	Version FlexInt `json:"format_version"`

	RecommendationField Scalar `json:"recommendation,omitempty"`
	ProposedOutcome     Scalar `json:"proposed_price_outcome,omitempty"`
	ResolvedOutcome     Scalar `json:"resolved_price_outcome,omitempty"`
	Reason              string `json:"reason,omitempty"`

	Result           *ResultSection    `json:"result,omitempty"`
	MarketData       *MarketData       `json:"market_data,omitempty"`
	ProposalMetadata *ProposalMetadata `json:"proposal_metadata,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`

	TimestampSec  Timestamp `json:"timestamp,omitempty"`
	UnixTimestamp Timestamp `json:"unix_timestamp,omitempty"`
	RunIteration  FlexInt   `json:"run_iteration"`
	Filename      string    `json:"filename,omitempty"`

	TagList       StringList `json:"tags,omitempty"`
	Question      string     `json:"question,omitempty"`
	TitleText     string     `json:"title,omitempty"`
	AncillaryData string     `json:"ancillary_data,omitempty"`
	UserPrompt    string     `json:"user_prompt,omitempty"`
	SystemPrompt  string     `json:"system_prompt,omitempty"`
	Response      Scalar     `json:"response,omitempty"`

	Journey       []JourneyStep       `json:"journey,omitempty"`
	SolverResults []SolverResult      `json:"solver_results,omitempty"`
	Overseer      *OverseerEvaluation `json:"overseer_data,omitempty"`

	// SourceFile is the file the record was loaded from, set by the loader.
	SourceFile string `json:"-"`
	// Raw is the record exactly as decoded.
	Raw json.RawMessage `json:"-"`

	// Set by run reconciliation. AllRuns holds the sibling records themselves,
	// not copies.
	Run      int       `json:"-"`
	AllRuns  []*Record `json:"-"`
	RunCount int       `json:"-"`
}

// ResultSection is the nested result block of format 2 files.
type ResultSection struct {
	Recommendation Scalar              `json:"recommendation,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	Confidence     Scalar              `json:"confidence,omitempty"`
	Solver         string              `json:"solver,omitempty"`
	Attempts       FlexInt             `json:"attempts"`
	SolverResults  []SolverResult      `json:"solver_results,omitempty"`
	Overseer       *OverseerEvaluation `json:"overseer,omitempty"`
}

// MarketData is the market context block of format 2 files.
type MarketData struct {
	Question        string     `json:"question,omitempty"`
	Title           string     `json:"title,omitempty"`
	ConditionID     string     `json:"condition_id,omitempty"`
	AncillaryData   string     `json:"ancillary_data,omitempty"`
	ResolvedOutcome Scalar     `json:"resolved_price_outcome,omitempty"`
	Tags            StringList `json:"tags,omitempty"`
	EndDate         Timestamp  `json:"end_date,omitempty"`
	Disputed        FlexBool   `json:"disputed,omitempty"`
	Volume          Scalar     `json:"volume,omitempty"`
	Tokens          []Token    `json:"tokens,omitempty"`
}

// ProposalMetadata is the on-chain context of the price request.
type ProposalMetadata struct {
	QueryID             string     `json:"query_id,omitempty"`
	TransactionHash     string     `json:"transaction_hash,omitempty"`
	BlockNumber         FlexInt    `json:"block_number"`
	RequestTimestamp    Timestamp  `json:"request_timestamp,omitempty"`
	ExpirationTimestamp Timestamp  `json:"expiration_timestamp,omitempty"`
	Proposer            string     `json:"proposer,omitempty"`
	Requester           string     `json:"requester,omitempty"`
	Bond                Scalar     `json:"bond,omitempty"`
	Reward              Scalar     `json:"reward,omitempty"`
	ProposedPrice       Scalar     `json:"proposed_price,omitempty"`
	AncillaryData       string     `json:"ancillary_data,omitempty"`
	Tags                StringList `json:"tags,omitempty"`
	ResolvedOutcome     Scalar     `json:"resolved_price_outcome,omitempty"`
	Disputed            FlexBool   `json:"disputed,omitempty"`
	Filename            string     `json:"filename,omitempty"`
	Tokens              []Token    `json:"tokens,omitempty"`
}

type Token struct {
	TokenID string   `json:"token_id,omitempty"`
	Outcome string   `json:"outcome,omitempty"`
	Price   Scalar   `json:"price,omitempty"`
	Winner  FlexBool `json:"winner,omitempty"`
}

// SolverResult is the output of one solver attempt.
type SolverResult struct {
	Solver         string   `json:"solver,omitempty"`
	Recommendation Scalar   `json:"recommendation,omitempty"`
	Response       Scalar   `json:"response,omitempty"`
	Success        FlexBool `json:"execution_successful,omitempty"`
	Attempt        FlexInt  `json:"attempt"`
}

// OverseerEvaluation is the overseer's judgement of the solver output.
type OverseerEvaluation struct {
	Decision       Scalar   `json:"decision,omitempty"`
	Verdict        string   `json:"verdict,omitempty"`
	Critique       string   `json:"critique,omitempty"`
	RequireRerun   FlexBool `json:"require_rerun,omitempty"`
	PromptUpdate   string   `json:"prompt_update,omitempty"`
	Recommendation Scalar   `json:"recommendation,omitempty"`
}

// ObjectID accepts plain strings and extended JSON {"$oid": "..."}.
type ObjectID string

func (o *ObjectID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var ext struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(b, &ext); err != nil {
			return fmt.Errorf("invalid _id: %w", err)
		}
		*o = ObjectID(ext.OID)
		return nil
	}
	var s Scalar
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	*o = ObjectID(s)
	return nil
}

func (r *Record) UnmarshalJSON(b []byte) error {
	type plain Record
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Record(p)
	r.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// DecodeRecord parses a single result document.
func DecodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &r, nil
}

// LogicalID is the dedup key: the first non-empty identity field.
func (r *Record) LogicalID() string {
	for _, id := range []string{r.QueryID, r.QuestionID, string(r.DocumentID), r.ShortID} {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	if r.ProposalMetadata != nil {
		return strings.TrimSpace(r.ProposalMetadata.QueryID)
	}
	return ""
}

// IdentityFields lists every non-empty identity value, used by free-text search.
func (r *Record) IdentityFields() []string {
	var out []string
	for _, id := range []string{r.QueryID, r.QuestionID, string(r.DocumentID), r.ShortID} {
		if id != "" {
			out = append(out, id)
		}
	}
	if r.ProposalMetadata != nil && r.ProposalMetadata.QueryID != "" {
		out = append(out, r.ProposalMetadata.QueryID)
	}
	return out
}

func (r *Record) Format() FormatVersion {
	if r.Version.Valid && r.Version.N >= int(FormatV2) {
		return FormatV2
	}
	return FormatLegacy
}

// Recommendation returns the system's output, or "" when absent.
func (r *Record) Recommendation() string {
	return firstScalar(r, recommendationPaths[r.Format()])
}

// Resolution returns the resolved outcome and whether the market is resolved.
// Missing, null, "N/A" and "None" all mean unresolved.
func (r *Record) Resolution() (string, bool) {
	v := firstScalar(r, resolutionPaths[r.Format()])
	switch strings.ToLower(v) {
	case "", "n/a", "none", "null":
		return "", false
	}
	return v, true
}

// Tags returns the record's labels from the first location that has any.
func (r *Record) Tags() []string {
	if len(r.TagList) > 0 {
		return r.TagList
	}
	if r.ProposalMetadata != nil && len(r.ProposalMetadata.Tags) > 0 {
		return r.ProposalMetadata.Tags
	}
	if r.MarketData != nil && len(r.MarketData.Tags) > 0 {
		return r.MarketData.Tags
	}
	return nil
}

func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags() {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Timestamp is the processing time in seconds since epoch, 0 when unknown.
func (r *Record) Timestamp() Timestamp {
	if !r.TimestampSec.IsZero() {
		return r.TimestampSec
	}
	return r.UnixTimestamp
}

// Expiration is the proposal expiry, falling back to the market end date.
func (r *Record) Expiration() Timestamp {
	if r.ProposalMetadata != nil && !r.ProposalMetadata.ExpirationTimestamp.IsZero() {
		return r.ProposalMetadata.ExpirationTimestamp
	}
	if r.MarketData != nil {
		return r.MarketData.EndDate
	}
	return 0
}

// FileName is the name of the file the record came from, when known.
func (r *Record) FileName() string {
	if r.SourceFile != "" {
		return r.SourceFile
	}
	if r.Filename != "" {
		return r.Filename
	}
	if r.ProposalMetadata != nil && r.ProposalMetadata.Filename != "" {
		return r.ProposalMetadata.Filename
	}
	for _, key := range []string{"filename", "file_name", "source_file"} {
		if v, ok := r.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func (r *Record) Disputed() bool {
	if r.ProposalMetadata != nil && bool(r.ProposalMetadata.Disputed) {
		return true
	}
	return r.MarketData != nil && bool(r.MarketData.Disputed)
}

var titlePattern = regexp.MustCompile(`(?i)title:\s*(.+?)(?:,\s*description:|\n|$)`)

// Title extracts the market title from the ancillary data or question text.
func (r *Record) Title() string {
	candidates := []string{r.AncillaryData, r.Question, r.UserPrompt}
	if r.ProposalMetadata != nil {
		candidates = append([]string{r.ProposalMetadata.AncillaryData}, candidates...)
	}
	if r.MarketData != nil {
		candidates = append(candidates, r.MarketData.AncillaryData)
	}
	for _, text := range candidates {
		if m := titlePattern.FindStringSubmatch(text); m != nil {
			if t := strings.TrimSpace(m[1]); t != "" {
				return t
			}
		}
	}

	fallbacks := []string{r.TitleText, r.Question}
	if r.MarketData != nil {
		fallbacks = append([]string{r.MarketData.Title, r.MarketData.Question}, fallbacks...)
	}
	for _, f := range fallbacks {
		if f = strings.TrimSpace(f); f != "" {
			return f
		}
	}
	return r.LogicalID()
}

// Solvers returns solver results from the nested result block or the root.
func (r *Record) Solvers() []SolverResult {
	if r.Result != nil && len(r.Result.SolverResults) > 0 {
		return r.Result.SolverResults
	}
	return r.SolverResults
}

// OverseerResult returns the overseer evaluation, if any was recorded.
func (r *Record) OverseerResult() *OverseerEvaluation {
	if r.Result != nil && r.Result.Overseer != nil {
		return r.Result.Overseer
	}
	return r.Overseer
}

func (r *Record) ReasonText() string {
	if r.Result != nil && r.Result.Reason != "" {
		return r.Result.Reason
	}
	return r.Reason
}

type scalarPath func(*Record) Scalar

func firstScalar(r *Record, paths []scalarPath) string {
	for _, p := range paths {
		if v := strings.TrimSpace(string(p(r))); v != "" {
			return v
		}
	}
	return ""
}

func v2Recommendation(r *Record) Scalar {
	if r.Result == nil {
		return ""
	}
	return r.Result.Recommendation
}

func legacyRecommendation(r *Record) Scalar { return r.RecommendationField }

func altRecommendation(r *Record) Scalar { return r.ProposedOutcome }

func v2Resolution(r *Record) Scalar {
	if r.MarketData == nil {
		return ""
	}
	return r.MarketData.ResolvedOutcome
}

func legacyResolution(r *Record) Scalar { return r.ResolvedOutcome }

func altResolution(r *Record) Scalar {
	if r.ProposalMetadata == nil {
		return ""
	}
	return r.ProposalMetadata.ResolvedOutcome
}

// Field precedence per format: nested format-2 path, legacy flat field, alternate field.
var (
	recommendationPaths = map[FormatVersion][]scalarPath{
		FormatV2:     {v2Recommendation, legacyRecommendation, altRecommendation},
		FormatLegacy: {legacyRecommendation, altRecommendation},
	}
	resolutionPaths = map[FormatVersion][]scalarPath{
		FormatV2:     {v2Resolution, legacyResolution, altResolution},
		FormatLegacy: {legacyResolution, altResolution},
	}
)
