package spore

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ugorji/go/codec"
)

// wireAction is the JSON object published on the gossip channel.
type wireAction struct {
	Type  string   `codec:"spore_type"`
	Args  []string `codec:"args"`
	Actor string   `codec:"actor"`
}

// DecodeError is returned for payloads that are not well-formed spore
// actions. Such payloads are dropped by receivers.
type DecodeError struct {
	Payload string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed spore action (%s): %q", e.Reason, e.Payload)
}

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

// Encode serializes a into its wire form. The output is deterministic.
func Encode(a Action) (string, error) {
	w := wireAction{
		Type:  string(a.Type),
		Args:  a.Args,
		Actor: a.Actor,
	}
	if w.Args == nil {
		w.Args = []string{}
	}

	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jsonHandle())
	if err := enc.Encode(w); err != nil {
		return "", err
	}

	return b.String(), nil
}

// Decode parses a wire payload. Invalid UTF-8, anything but whitespace after
// the JSON object, unknown types, a missing actor, or too few arguments for
// the type yield a *DecodeError.
func Decode(payload string) (Action, error) {
	var w wireAction

	if !utf8.ValidString(payload) {
		return Action{}, &DecodeError{Payload: payload, Reason: "invalid utf-8"}
	}

	dec := codec.NewDecoderBytes([]byte(payload), jsonHandle())
	if err := dec.Decode(&w); err != nil {
		return Action{}, &DecodeError{Payload: payload, Reason: err.Error()}
	}

	if strings.TrimSpace(payload[dec.NumBytesRead():]) != "" {
		return Action{}, &DecodeError{Payload: payload, Reason: "trailing data"}
	}

	t := ActionType(w.Type)
	minArgs, ok := known[t]
	if !ok {
		return Action{}, &DecodeError{Payload: payload, Reason: fmt.Sprintf("unknown type %q", w.Type)}
	}
	if w.Actor == "" {
		return Action{}, &DecodeError{Payload: payload, Reason: "no actor"}
	}
	if len(w.Args) < minArgs {
		return Action{}, &DecodeError{Payload: payload, Reason: fmt.Sprintf("%s needs %d args, got %d", t, minArgs, len(w.Args))}
	}

	return Action{
		Type:  t,
		Args:  w.Args,
		Actor: w.Actor,
	}, nil
}
