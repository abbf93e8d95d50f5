package nodebox

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const idPlaceholder = "{id}"

// Spelling is one guess at the vendor CLI syntax. Args may contain {id}.
type Spelling struct {
	Name string
	Args []string
	// Marker is the help-text token that suggests this spelling is the right
	// one. Empty markers never match.
	Marker string
}

func (s Spelling) Expand(id string) []string {
	out := make([]string, len(s.Args))
	for i, a := range s.Args {
		out[i] = strings.ReplaceAll(a, idPlaceholder, id)
	}
	return out
}

var NexusStartSpellings = []Spelling{
	{Name: "start --node-id", Args: []string{"start", "--node-id", idPlaceholder}, Marker: "--node-id"},
	{Name: "start --node-id=", Args: []string{"start", "--node-id=" + idPlaceholder}},
	{Name: "start --nodeid", Args: []string{"start", "--nodeid", idPlaceholder}, Marker: "--nodeid"},
	{Name: "node start --node-id", Args: []string{"node", "start", "--node-id", idPlaceholder}, Marker: "node start"},
	{Name: "start <id>", Args: []string{"start", idPlaceholder}},
}

var NexusRegisterSpellings = []Spelling{
	{Name: "register-user --wallet-address", Args: []string{"register-user", "--wallet-address", idPlaceholder}, Marker: "--wallet-address"},
	{Name: "register-user --wallet", Args: []string{"register-user", "--wallet", idPlaceholder}, Marker: "register-user"},
	{Name: "register --wallet", Args: []string{"register", "--wallet", idPlaceholder}, Marker: "register "},
}

var NexusLoginSpellings = []Spelling{
	{Name: "login", Args: []string{"login"}, Marker: "login"},
	{Name: "auth login", Args: []string{"auth", "login"}, Marker: "auth"},
}

// Reorder moves the first spelling whose marker appears in help to the front.
// The relative order of the rest is kept.
func Reorder(spellings []Spelling, help string) []Spelling {
	out := append([]Spelling(nil), spellings...)
	if strings.TrimSpace(help) == "" {
		return out
	}
	for i, s := range out {
		if s.Marker == "" || !strings.Contains(help, s.Marker) {
			continue
		}
		if i == 0 {
			return out
		}
		picked := out[i]
		copy(out[1:i+1], out[:i])
		out[0] = picked
		return out
	}
	return out
}

var authPhrases = []string{
	"login",
	"log in",
	"not logged",
	"unauthorized",
	"authenticate",
	"authentication",
	"register-user",
	"sign in",
}

// AuthRequired reports whether output asks the user to authenticate.
func AuthRequired(output string) bool {
	lower := strings.ToLower(output)
	for _, p := range authPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// AttemptFunc runs one candidate argv and returns its output.
type AttemptFunc func(ctx context.Context, argv []string) (string, error)

// RunnerAttempt tries candidates through r, attached to the terminal.
func RunnerAttempt(r Runner) AttemptFunc {
	return func(ctx context.Context, argv []string) (string, error) {
		res, err := r.RunArgs(ctx, argv[0], argv[1:]...)
		return res.Output, err
	}
}

type Attempt struct {
	Spelling Spelling
	Argv     []string
	Output   string
	Err      error
}

type SearchResult struct {
	Winner       *Spelling
	Attempts     []Attempt
	AuthRequired bool
}

// Search tries each spelling in order and stops at the first that exits 0.
// It stops early, wrapping ErrCLIUnavailable, when output shows the binary
// cannot run here at all.
func Search(ctx context.Context, bin, id string, spellings []Spelling, try AttemptFunc) (*SearchResult, error) {
	res := &SearchResult{}
	if usesID(spellings) && strings.TrimSpace(id) == "" {
		return res, ErrEmptyIdentifier
	}
	for _, s := range spellings {
		argv := append([]string{bin}, s.Expand(id)...)
		out, err := try(ctx, argv)
		res.Attempts = append(res.Attempts, Attempt{Spelling: s, Argv: argv, Output: out, Err: err})
		if AuthRequired(out) {
			res.AuthRequired = true
		}
		if err == nil {
			w := s
			res.Winner = &w
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		if sig := Incompatibility(out, err); sig != "" {
			return res, fmt.Errorf("%s: %s: %w", bin, sig, ErrCLIUnavailable)
		}
	}
	return res, fmt.Errorf("tried %d spellings of %s: %w", len(res.Attempts), bin, errors.Join(ErrNoSpellingSucceeded, lastErr(res)))
}

func usesID(spellings []Spelling) bool {
	for _, s := range spellings {
		for _, a := range s.Args {
			if strings.Contains(a, idPlaceholder) {
				return true
			}
		}
	}
	return false
}

func lastErr(res *SearchResult) error {
	if n := len(res.Attempts); n > 0 {
		return res.Attempts[n-1].Err
	}
	return nil
}
