package domain

// CommunityScore is the derived aggregate for one submission. It is a cache
// recomputable from the vote ledger at any time, never hand-edited.
type CommunityScore struct {
	SubmissionID string
	Score        float64 // sum of per-wallet weights
	UniqueVoters int     // wallets with weight > 0
	LastVoteTime int64   // max confirmed ts among contributing records, unix ms
	UpdatedAt    int64   // recompute timestamp (ms)
}

// MinVotersForScore is the visibility threshold: a submission shows a
// numeric score only once it has more than one unique voter.
const MinVotersForScore = 2

// Scored reports whether the score is publishable. Below the threshold the
// API must return an explicit "no score" marker, never a numeric zero.
func (s *CommunityScore) Scored() bool {
	return s.UniqueVoters >= MinVotersForScore
}

// ScorePoint is one row of the score history timeseries kept in ClickHouse
// for charting. Append-only, one point per recompute.
type ScorePoint struct {
	SubmissionID string
	Score        float64
	UniqueVoters int
	TimestampMs  int64
}
