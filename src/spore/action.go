// Package spore implements the coordination messages ("spore actions") that
// nodes exchange over the gossip channel, and their wire codec.
//
// Spore actions carry no signature. Any party able to publish on the spore
// topic can claim to own a group or flood join offers; receivers have no way
// to tell.
package spore

import (
	"fmt"
	"time"
)

// ActionType tags the variant of a spore action.
type ActionType string

const (
	// JoinGroup advertises a learning group. Args are [link, groupID].
	JoinGroup ActionType = "JOIN_GROUP"
)

// known lists the action types Decode accepts, with their minimum number of
// arguments.
var known = map[ActionType]int{
	JoinGroup: 2,
}

// Action is a coordination message. ReceivedAt is set on receipt and is not
// part of the wire format.
type Action struct {
	Type       ActionType
	Args       []string
	Actor      string
	ReceivedAt time.Time
}

// JoinOffer is the typed view of a JOIN_GROUP action.
type JoinOffer struct {
	Link    string
	GroupID string
	Actor   string
}

// NewJoinGroup builds the JOIN_GROUP action a node uses to advertise its
// group.
func NewJoinGroup(link, groupID, actor string) Action {
	return Action{
		Type:  JoinGroup,
		Args:  []string{link, groupID},
		Actor: actor,
	}
}

// JoinOffer extracts the offer carried by a JOIN_GROUP action.
func (a Action) JoinOffer() (JoinOffer, error) {
	if a.Type != JoinGroup {
		return JoinOffer{}, fmt.Errorf("%s is not a %s action", a.Type, JoinGroup)
	}
	if len(a.Args) < 2 || a.Args[1] == "" {
		return JoinOffer{}, fmt.Errorf("%s action without a group id", JoinGroup)
	}
	return JoinOffer{
		Link:    a.Args[0],
		GroupID: a.Args[1],
		Actor:   a.Actor,
	}, nil
}

// FilterByType keeps the actions of type t, preserving input order. No
// deduplication is done.
func FilterByType(actions []Action, t ActionType) []Action {
	res := []Action{}
	for _, a := range actions {
		if a.Type == t {
			res = append(res, a)
		}
	}
	return res
}
