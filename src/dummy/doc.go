// Package dummy provides a reference trainer so that a node can run end to
// end without an external learner.
//
// The trainer is a small matrix-factorisation recommender: every user and
// every item gets an embedding, a rating is predicted by their dot product,
// and each call to Train runs one pass of stochastic gradient descent over
// the ratings. Its two parameter tensors, "users" and "items", have the same
// shape on every node fed with the same user and item sets, so they can be
// averaged across a learning group.
package dummy
