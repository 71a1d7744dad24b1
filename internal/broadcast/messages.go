package broadcast

import (
	"encoding/json"

	"solana-vote-tracker/internal/domain"
)

// Message types pushed to subscribers.
const (
	TypeScoreUpdate = "score_update"
	TypePoolUpdate  = "pool_update"
)

// Message is one websocket frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ScorePayload is the wire form of a community score. Score is null until
// the submission has enough unique voters, never a numeric zero.
type ScorePayload struct {
	SubmissionID string   `json:"submission_id"`
	Score        *float64 `json:"score"`
	UniqueVoters int      `json:"unique_voters"`
	LastVoteTime int64    `json:"last_vote_time,omitempty"`
	UpdatedAt    int64    `json:"updated_at"`
}

// NewScorePayload converts a domain score to its wire form.
func NewScorePayload(s *domain.CommunityScore) ScorePayload {
	p := ScorePayload{
		SubmissionID: s.SubmissionID,
		UniqueVoters: s.UniqueVoters,
		LastVoteTime: s.LastVoteTime,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.Scored() {
		score := s.Score
		p.Score = &score
	}
	return p
}

// HoldingPayload is the wire form of one pool holding.
type HoldingPayload struct {
	Mint   string  `json:"mint"`
	Symbol string  `json:"symbol,omitempty"`
	Amount float64 `json:"amount"`
	Value  float64 `json:"value"`
}

// ContributionPayload is the wire form of one recent contribution.
type ContributionPayload struct {
	Signature string  `json:"signature"`
	Sender    string  `json:"sender"`
	Amount    float64 `json:"amount"`
	Mint      string  `json:"mint"`
	Timestamp int64   `json:"timestamp"`
}

// PoolPayload is the wire form of the prize pool snapshot.
type PoolPayload struct {
	TotalValue  float64               `json:"total_value"`
	Holdings    []HoldingPayload      `json:"holdings"`
	Recent      []ContributionPayload `json:"recent"`
	Target      float64               `json:"target,omitempty"`
	Progress    float64               `json:"progress"`
	Stale       bool                  `json:"stale"`
	LastUpdated int64                 `json:"last_updated"`
}

// NewPoolPayload converts a domain snapshot to its wire form.
func NewPoolPayload(s *domain.PrizePoolSnapshot) PoolPayload {
	p := PoolPayload{
		TotalValue:  s.TotalValue,
		Holdings:    make([]HoldingPayload, 0, len(s.Holdings)),
		Recent:      make([]ContributionPayload, 0, len(s.Recent)),
		Target:      s.Target,
		Progress:    s.Progress,
		Stale:       s.Stale,
		LastUpdated: s.LastUpdatedMs,
	}
	for _, h := range s.Holdings {
		p.Holdings = append(p.Holdings, HoldingPayload{
			Mint:   h.Mint,
			Symbol: h.Symbol,
			Amount: h.Amount,
			Value:  h.Value,
		})
	}
	for _, c := range s.Recent {
		p.Recent = append(p.Recent, ContributionPayload{
			Signature: c.Signature,
			Sender:    c.Sender,
			Amount:    c.Amount,
			Mint:      c.Mint,
			Timestamp: c.Timestamp,
		})
	}
	return p
}

// EncodeScoreUpdate builds the score_update frame.
func EncodeScoreUpdate(s *domain.CommunityScore) ([]byte, error) {
	return json.Marshal(Message{Type: TypeScoreUpdate, Data: NewScorePayload(s)})
}

// EncodePoolUpdate builds the pool_update frame.
func EncodePoolUpdate(s *domain.PrizePoolSnapshot) ([]byte, error) {
	return json.Marshal(Message{Type: TypePoolUpdate, Data: NewPoolPayload(s)})
}
