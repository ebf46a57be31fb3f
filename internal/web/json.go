package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	rootMessage   = "API relais opérationnelle ✅"
	allOnMessage  = "Tous les relais activés."
	allOffMessage = "Tous les relais désactivés."
)

// RootJSON is the liveness response.
type RootJSON struct {
	Message string `json:"message"`
	Pins    []int  `json:"pins"`
}

// CommandJSON is the body of POST /relay.
type CommandJSON struct {
	GPIO  *int    `json:"gpio"`
	State *string `json:"state"`
}

// RelayJSON confirms the state applied to one relay.
type RelayJSON struct {
	GPIO  int    `json:"gpio"`
	State string `json:"state"`
}

// MessageJSON acknowledges a bulk command.
type MessageJSON struct {
	Message string `json:"message"`
}

// ErrorJSON carries every error reported to a caller.
type ErrorJSON struct {
	Error string `json:"error"`
}

// command is a decoded CommandJSON with both fields present.
type command struct {
	GPIO  int
	State string
}

// decodeCommand reads a relay command. The state is passed through
// untouched; the controller validates it.
func decodeCommand(r io.Reader, limit int64) (command, error) {
	var body CommandJSON
	dec := json.NewDecoder(io.LimitReader(r, limit))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return command{}, errors.New("invalid request body: empty")
		}
		return command{}, fmt.Errorf("invalid request body: %v", err)
	}
	if body.GPIO == nil {
		return command{}, errors.New("invalid request body: field gpio required")
	}
	if body.State == nil {
		return command{}, errors.New("invalid request body: field state required")
	}
	return command{GPIO: *body.GPIO, State: *body.State}, nil
}
