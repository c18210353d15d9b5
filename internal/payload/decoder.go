// Package payload decodes raw topic payloads into typed messages.
//
// Epoch payloads look like "<uint>[ <algorithm>]", shutdown payloads are a
// bare "<uint>", and a mined-state payload means "holding" when it starts
// with HoldPrefix. Numbers take an optional base prefix: 0x for
// hex, a leading 0 for octal, decimal otherwise.
package payload

import (
	"fmt"
	"strconv"
	"strings"

	"dagd-mqtt/internal/algo"
)

// HoldPrefix marks a mined-state payload as holding
const HoldPrefix = "epoch_upload "

// Decoder turns raw payloads into Messages
type Decoder struct {
	resolver algo.Resolver
}

// NewDecoder creates a decoder. A nil resolver means the built-in table.
func NewDecoder(resolver algo.Resolver) *Decoder {
	if resolver == nil {
		resolver = algo.Table{}
	}
	return &Decoder{resolver: resolver}
}

// Decode parses raw according to the grammar of topic. Failures are always
// *DecodeError and never leave side effects.
func (d *Decoder) Decode(topic Topic, raw []byte) (Message, error) {
	switch topic {
	case TopicEpoch:
		return d.decodeEpoch(raw)
	case TopicMinedState:
		return MinedStateMessage{Holding: strings.HasPrefix(string(raw), HoldPrefix)}, nil
	case TopicShutdown:
		n, rest, err := scanUint(string(raw))
		if err == nil {
			err = checkTrailer(rest)
		}
		if err != nil {
			return nil, decodeError(topic, raw, err)
		}
		return ShutdownMessage{Pending: n != 0}, nil
	default:
		return nil, decodeError(topic, raw, ErrUnknownTopic)
	}
}

func (d *Decoder) decodeEpoch(raw []byte) (Message, error) {
	n, rest, err := scanUint(string(raw))
	if err == nil {
		err = checkTrailer(rest)
	}
	if err != nil {
		return nil, decodeError(TopicEpoch, raw, err)
	}

	if rest == "" {
		return EpochMessage{Epoch: n, Algorithm: algo.Baseline}, nil
	}

	name := rest[1:]
	if name == "" {
		return nil, decodeError(TopicEpoch, raw, ErrMissingAlgorithm)
	}
	code, ok := d.resolver.Resolve(name)
	if !ok {
		return nil, decodeError(TopicEpoch, raw, fmt.Errorf("%w %q", ErrUnknownAlgorithm, name))
	}

	return EpochMessage{Epoch: n, Algorithm: code}, nil
}

// checkTrailer accepts an empty rest or one starting with the space separator
func checkTrailer(rest string) error {
	if rest == "" || rest[0] == ' ' {
		return nil
	}
	return fmt.Errorf("%w: unexpected %q", ErrBadNumber, rest)
}

// scanUint reads the longest unsigned number prefix of s and returns the
// remainder. An empty s reads as 0; any other s without digits is an error.
func scanUint(s string) (uint64, string, error) {
	if s == "" {
		return 0, "", nil
	}

	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	if i < len(s) && s[i] == '+' {
		i++
	}

	base, start := 10, i
	if i < len(s) && s[i] == '0' {
		base = 8
		if i+2 < len(s) && (s[i+1] == 'x' || s[i+1] == 'X') && digitValue(s[i+2]) < 16 {
			base, start = 16, i+2
		}
	}

	end := start
	for end < len(s) && digitValue(s[end]) < base {
		end++
	}
	if end == start {
		return 0, s, fmt.Errorf("%w: no digits", ErrBadNumber)
	}

	n, err := strconv.ParseUint(s[start:end], base, 64)
	if err != nil {
		return 0, s, fmt.Errorf("%w: %v", ErrBadNumber, err)
	}

	return n, s[end:], nil
}

func digitValue(c byte) int {
	switch {
	case '0' <= c && c <= '9':
		return int(c - '0')
	case 'a' <= c && c <= 'f':
		return int(c-'a') + 10
	case 'A' <= c && c <= 'F':
		return int(c-'A') + 10
	default:
		return 99
	}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
