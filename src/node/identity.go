package node

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

var (
	namePrefixes = []string{
		"Shroom", "Toadstool", "Spore", "Mycelium", "Cap", "Gilly", "Truffle", "Fungi", "Mush", "Puff",
	}
	nameSuffixes = []string{
		"Sage", "Oracle", "Whisperer", "Teller", "Connoisseur", "Seer", "Enchanter", "Charmer", "Mystic",
	}
)

// Identity names a node and its model.
type Identity struct {
	ID        string
	Name      string
	ModelName string
	// Link is what the node advertises in its JOIN_GROUP offers.
	Link string
}

// NewIdentity fills in the model name, and a random name when name is empty.
func NewIdentity(id, name, link string, rnd *rand.Rand) Identity {
	if name == "" {
		name = RandomName(rnd)
	}
	return Identity{
		ID:        id,
		Name:      name,
		ModelName: "model-" + id,
		Link:      link,
	}
}

// Actor is the author tag of the spore actions the node posts.
func (i Identity) Actor() string {
	return "sporenet-node-" + i.ID
}

// RandomName picks a mushroom name such as "Truffle Oracle". A nil rnd uses a
// time-seeded source.
func RandomName(rnd *rand.Rand) string {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return fmt.Sprintf("%s %s",
		namePrefixes[rnd.Intn(len(namePrefixes))],
		nameSuffixes[rnd.Intn(len(nameSuffixes))])
}

// NewGroupID returns a fresh learning group id.
func NewGroupID() string {
	return uuid.NewString()
}
