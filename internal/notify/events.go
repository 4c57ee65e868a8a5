package notify

import (
	"context"
	"fmt"

	"evoladder/internal/match"
)

// MatchNotifier adapts Router to the match.Notifier interface, building
// low-priority Messages from match lifecycle events (spec.md §4.9: "match
// notifications" are low-priority).
type MatchNotifier struct {
	router *Router
}

func NewMatchNotifier(router *Router) *MatchNotifier {
	return &MatchNotifier{router: router}
}

func (n *MatchNotifier) NotifyMatchFound(ctx context.Context, ev match.MatchFoundEvent) error {
	msg := Message{
		RecipientUID: ev.RecipientUID,
		Title:        "Match found",
		Body:         fmt.Sprintf("vs %d on %s", ev.OpponentUID, ev.Map),
		Fields: map[string]string{
			"match_id":  fmt.Sprintf("%d", ev.MatchID),
			"your_race": ev.RecipientRace,
			"opp_race":  ev.OpponentRace,
			"server":    ev.Server,
		},
	}
	return n.router.Enqueue(ctx, PriorityLow, msg)
}

func (n *MatchNotifier) NotifyResultFinalized(ctx context.Context, ev match.ResultFinalizedEvent) error {
	msg := Message{
		RecipientUID: ev.RecipientUID,
		Title:        "Match result",
		Body:         fmt.Sprintf("result=%d mmr_change=%+d", ev.Result, ev.MMRChange),
		Fields: map[string]string{
			"match_id":   fmt.Sprintf("%d", ev.MatchID),
			"mmr_before": fmt.Sprintf("%d", ev.MMRBefore),
			"mmr_after":  fmt.Sprintf("%d", ev.MMRAfter),
		},
	}
	return n.router.Enqueue(ctx, PriorityLow, msg)
}
