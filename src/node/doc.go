// Package node implements the epoch coordinator of a sporenet node.
//
// A node runs one sequential loop of epochs. Each epoch walks the states
// SEARCHING, TRAINING, AGGREGATING, EVALUATING_FEEDBACK, EVOLVING and
// SLEEPING:
//
//	SEARCHING           a groupless or switching node advertises its group and
//	                    accepts the first JOIN_GROUP offer it reads; a joined
//	                    node re-advertises its group
//	TRAINING            the local trainer runs and its snapshot is saved
//	AGGREGATING         group snapshots are merged into the live model
//	EVALUATING_FEEDBACK the feedback value of the epoch is computed
//	EVOLVING            feedback below the threshold means switching next
//	                    epoch; the threshold itself may mutate
//	SLEEPING            wait, then back to SEARCHING
//
// Step runs a single state and can be tested on its own. Run wraps RunEpoch
// in a loop that recovers every error and panic, sleeps and starts over from
// SEARCHING, so a failing collaborator never stops the process.
//
// Offers are taken in arrival order with no ranking, and a node may accept
// its own. Offers are not authenticated: anyone who can publish on the spore
// topic can lure nodes into a group.
package node
