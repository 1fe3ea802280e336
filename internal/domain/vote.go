package domain

import "time"

// Direction is a stored vote.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// VoteAction is what a caller asks for: a direction or removal.
type VoteAction string

const (
	ActionUp     VoteAction = "up"
	ActionDown   VoteAction = "down"
	ActionRemove VoteAction = "remove"
)

// ParseVoteAction validates a raw voteType value.
func ParseVoteAction(s string) (VoteAction, bool) {
	switch a := VoteAction(s); a {
	case ActionUp, ActionDown, ActionRemove:
		return a, true
	default:
		return "", false
	}
}

// Vote is one user's up or down vote on one item. Having no vote means no row.
type Vote struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	UserID    string    `json:"user_id"`
	Direction Direction `json:"vote_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VoteCounts is the per-item tally recounted from all votes after each change.
type VoteCounts struct {
	ItemID    string    `json:"-"`
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	Score     int       `json:"score"`
	Version   int64     `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// NewVoteCounts builds a tally and derives its score.
func NewVoteCounts(itemID string, up, down int) VoteCounts {
	return VoteCounts{ItemID: itemID, Upvotes: up, Downvotes: down, Score: up - down}
}

// VoteOp is the write a transition needs against the votes table.
type VoteOp int

const (
	VoteNoop VoteOp = iota
	VoteInsert
	VoteUpdate
	VoteDelete
)

func (op VoteOp) String() string {
	switch op {
	case VoteInsert:
		return "insert"
	case VoteUpdate:
		return "update"
	case VoteDelete:
		return "delete"
	default:
		return "noop"
	}
}

// NextVote applies action to the caller's current vote (nil when none) and
// returns the resulting vote and the write that gets there. Repeating the
// current direction toggles the vote off.
func NextVote(current *Direction, action VoteAction) (*Direction, VoteOp) {
	if action == ActionRemove {
		if current == nil {
			return nil, VoteNoop
		}
		return nil, VoteDelete
	}

	want := Direction(action)
	switch {
	case current == nil:
		return &want, VoteInsert
	case *current == want:
		return nil, VoteDelete
	default:
		return &want, VoteUpdate
	}
}
